package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadpipe/internal/leads/ports"
	"leadpipe/platform/logger"

	"github.com/chromedp/chromedp"
)

// BrowserConfig configures the chromedp intake surface.
type BrowserConfig struct {
	Profile  Profile
	Username string
	Password string
	Headless bool
	// SettleDelay is waited after clicks that navigate.
	SettleDelay time.Duration
}

// Browser opens chromedp sessions against the intake portal.
type Browser struct {
	cfg BrowserConfig
	log *logger.Logger
}

var _ ports.IntakeSurface = (*Browser)(nil)

// NewBrowser validates the portal settings.
func NewBrowser(cfg BrowserConfig, log *logger.Logger) (*Browser, error) {
	if cfg.Profile.PortalURL == "" {
		return nil, errors.New("intake: portal url is required")
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Browser{cfg: cfg, log: log.WithComponent("intake_browser")}, nil
}

// Open starts a fresh browser. The browser outlives ctx and is released by
// Close.
func (b *Browser) Open(ctx context.Context) (ports.IntakeSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.WindowSize(1366, 900),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	s := &session{
		cfg:     b.cfg,
		log:     b.log,
		browser: browserCtx,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
	}
	// The first Run starts the browser process and must use the browser
	// context itself, otherwise the process dies with the derived context.
	if err := chromedp.Run(browserCtx); err != nil {
		s.cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

type session struct {
	cfg     BrowserConfig
	log     *logger.Logger
	browser context.Context
	cancel  context.CancelFunc
}

// run executes actions on the browser tab, bounded by ctx.
func (s *session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.browser)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (s *session) snapshot(ctx context.Context) (ports.IntakePage, error) {
	var page ports.IntakePage
	err := s.run(ctx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&page.URL),
		chromedp.Title(&page.Title),
		chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery),
	)
	return page, err
}

// NeedsLogin reports whether page looks like the portal's login screen.
func NeedsLogin(page ports.IntakePage, login LoginProfile) bool {
	if login.URLMarker != "" && containsFold(page.URL, login.URLMarker) {
		return true
	}
	return login.TitleMarker != "" && containsFold(page.Title, login.TitleMarker)
}

func (s *session) Authenticate(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Navigate(s.cfg.Profile.PortalURL)); err != nil {
		return fmt.Errorf("open portal: %w", err)
	}
	page, err := s.snapshot(ctx)
	if err != nil {
		return err
	}
	login := s.cfg.Profile.Login
	if !NeedsLogin(page, login) {
		s.log.Debug("session already authenticated")
		return nil
	}

	err = s.run(ctx,
		chromedp.WaitVisible(login.UsernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(login.UsernameSelector, s.cfg.Username, chromedp.ByQuery),
		chromedp.SendKeys(login.PasswordSelector, s.cfg.Password, chromedp.ByQuery),
		chromedp.Click(login.SubmitSelector, chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
	)
	if err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}

	page, err = s.snapshot(ctx)
	if err != nil {
		return err
	}
	if NeedsLogin(page, login) {
		return errors.New("still on login page after submitting credentials")
	}
	return nil
}

func (s *session) OpenForm(ctx context.Context) error {
	return s.run(ctx,
		chromedp.Navigate(s.cfg.Profile.FormPage()),
		chromedp.WaitVisible(s.cfg.Profile.Form.ReadySelector, chromedp.ByQuery),
	)
}

func (s *session) exists(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf("document.querySelector(%q) !== null", selector), &ok))
	return ok, err
}

func (s *session) Fill(ctx context.Context, field ports.FormField) error {
	ok, err := s.exists(ctx, field.Selector)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no element matches %s", field.Selector)
	}

	switch field.Kind {
	case ports.FieldSelect:
		var matched bool
		script := fmt.Sprintf(`(() => {
			const el = document.querySelector(%q);
			const want = %q.toLowerCase();
			const opt = Array.from(el.options).find(o => o.value.toLowerCase() === want || o.text.trim().toLowerCase() === want);
			if (!opt) return false;
			el.value = opt.value;
			el.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		})()`, field.Selector, field.Value)
		if err := s.run(ctx, chromedp.Evaluate(script, &matched)); err != nil {
			return err
		}
		if !matched {
			return fmt.Errorf("no option %q in %s", field.Value, field.Selector)
		}
		return nil
	case ports.FieldCheckbox:
		if !truthy(field.Value) {
			return nil
		}
		_, err := s.checkFirst(ctx, []string{field.Selector})
		return err
	default:
		return s.run(ctx,
			chromedp.Clear(field.Selector, chromedp.ByQuery),
			chromedp.SendKeys(field.Selector, field.Value, chromedp.ByQuery),
		)
	}
}

func (s *session) CheckFirst(ctx context.Context, selectors []string) (string, error) {
	return s.checkFirst(ctx, selectors)
}

func (s *session) checkFirst(ctx context.Context, selectors []string) (string, error) {
	for _, sel := range selectors {
		var ticked bool
		script := fmt.Sprintf(`(() => {
			const el = document.querySelector(%q);
			if (!el) return false;
			if (!el.checked) el.click();
			return true;
		})()`, sel)
		if err := s.run(ctx, chromedp.Evaluate(script, &ticked)); err != nil {
			return "", err
		}
		if ticked {
			return sel, nil
		}
	}
	return "", nil
}

func (s *session) Submit(ctx context.Context) (ports.IntakePage, error) {
	err := s.run(ctx,
		chromedp.Click(s.cfg.Profile.Form.SubmitSelector, chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
	)
	if err != nil {
		return ports.IntakePage{}, fmt.Errorf("click submit: %w", err)
	}
	return s.snapshot(ctx)
}

func (s *session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *session) Close() error {
	s.cancel()
	return nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
