// Package intake drives the partner intake portal: the site profile, the
// layered submission classifier and the chromedp browser session.
package intake

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"leadpipe/internal/leads/ports"
	"leadpipe/internal/pipeline"

	"gopkg.in/yaml.v3"
)

// Profile describes one intake portal: where it lives, how to log in, how the
// form is laid out and how to read the page after submitting.
type Profile struct {
	Name      string       `yaml:"name"`
	PortalURL string       `yaml:"portal_url"`
	FormURL   string       `yaml:"form_url"`
	Login     LoginProfile `yaml:"login"`
	Form      FormProfile  `yaml:"form"`
	Success   Markers      `yaml:"success"`
	Failure   Markers      `yaml:"failure"`
}

// LoginProfile holds the login form selectors and the markers that reveal an
// unauthenticated page.
type LoginProfile struct {
	UsernameSelector string `yaml:"username_selector"`
	PasswordSelector string `yaml:"password_selector"`
	SubmitSelector   string `yaml:"submit_selector"`
	URLMarker        string `yaml:"url_marker"`
	TitleMarker      string `yaml:"title_marker"`
}

// FormProfile is the intake form layout.
type FormProfile struct {
	ReadySelector  string      `yaml:"ready_selector"`
	SubmitSelector string      `yaml:"submit_selector"`
	Fields         []FieldSpec `yaml:"fields"`
	TCPASelectors  []string    `yaml:"tcpa_selectors"`
}

// FieldSpec maps a lead field to a form element.
type FieldSpec struct {
	Name     string `yaml:"name"`
	Selector string `yaml:"selector"`
	Kind     string `yaml:"kind"`
}

// Markers are the keywords and element selectors that signal an outcome.
type Markers struct {
	Keywords  []string `yaml:"keywords"`
	Selectors []string `yaml:"selectors"`
}

// DefaultProfile is the built-in portal layout.
func DefaultProfile() Profile {
	fields := pipeline.DefaultFormFields()
	specs := make([]FieldSpec, 0, len(fields))
	for _, f := range fields {
		specs = append(specs, FieldSpec{Name: f.Name, Selector: f.Selector, Kind: string(f.Kind)})
	}
	return Profile{
		Name: "LeadHoop",
		Login: LoginProfile{
			UsernameSelector: "input[name='username'], input[name='email']",
			PasswordSelector: "input[name='password']",
			SubmitSelector:   "button[type='submit'], input[type='submit']",
			URLMarker:        "login",
			TitleMarker:      "sign in",
		},
		Form: FormProfile{
			ReadySelector:  "form",
			SubmitSelector: "button[type='submit'], input[type='submit']",
			Fields:         specs,
			TCPASelectors:  pipeline.DefaultTCPASelectors(),
		},
		Success: Markers{
			Keywords: []string{"thank you", "success", "submitted", "received", "confirmation"},
			Selectors: []string{
				".success-message",
				".alert-success",
				".confirmation",
				"h1:has-text('Thank You')",
				".success",
			},
		},
		Failure: Markers{
			Keywords: []string{"error", "failed", "invalid", "problem", "incorrect"},
			Selectors: []string{
				".error-message",
				".alert-danger",
				".form-error",
				".validation-summary-errors",
				".error",
			},
		},
	}
}

// ParseProfile decodes a YAML profile. Omitted sections keep the defaults.
func ParseProfile(data []byte) (Profile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Profile{}, errors.New("intake: profile payload is empty")
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("intake: decode profile: %w", err)
	}
	p = p.Normalized()
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// LoadProfile reads a profile from disk. An empty path yields DefaultProfile.
func LoadProfile(path string) (Profile, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("intake: read %s: %w", path, err)
	}
	p, err := ParseProfile(data)
	if err != nil {
		return Profile{}, fmt.Errorf("intake: %s: %w", path, err)
	}
	return p, nil
}

// Normalized fills unset sections from DefaultProfile and trims values.
func (p Profile) Normalized() Profile {
	def := DefaultProfile()
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		p.Name = def.Name
	}
	p.PortalURL = strings.TrimSpace(p.PortalURL)
	p.FormURL = strings.TrimSpace(p.FormURL)

	l := &p.Login
	l.UsernameSelector = orDefault(l.UsernameSelector, def.Login.UsernameSelector)
	l.PasswordSelector = orDefault(l.PasswordSelector, def.Login.PasswordSelector)
	l.SubmitSelector = orDefault(l.SubmitSelector, def.Login.SubmitSelector)
	l.URLMarker = orDefault(l.URLMarker, def.Login.URLMarker)
	l.TitleMarker = orDefault(l.TitleMarker, def.Login.TitleMarker)

	f := &p.Form
	f.ReadySelector = orDefault(f.ReadySelector, def.Form.ReadySelector)
	f.SubmitSelector = orDefault(f.SubmitSelector, def.Form.SubmitSelector)
	if len(f.Fields) == 0 {
		f.Fields = def.Form.Fields
	}
	for i := range f.Fields {
		f.Fields[i].Name = strings.TrimSpace(f.Fields[i].Name)
		f.Fields[i].Selector = strings.TrimSpace(f.Fields[i].Selector)
		f.Fields[i].Kind = strings.ToLower(strings.TrimSpace(f.Fields[i].Kind))
		if f.Fields[i].Kind == "" {
			f.Fields[i].Kind = string(ports.FieldInput)
		}
	}
	if len(f.TCPASelectors) == 0 {
		f.TCPASelectors = def.Form.TCPASelectors
	}

	if len(p.Success.Keywords) == 0 {
		p.Success.Keywords = def.Success.Keywords
	}
	if len(p.Success.Selectors) == 0 {
		p.Success.Selectors = def.Success.Selectors
	}
	if len(p.Failure.Keywords) == 0 {
		p.Failure.Keywords = def.Failure.Keywords
	}
	if len(p.Failure.Selectors) == 0 {
		p.Failure.Selectors = def.Failure.Selectors
	}
	return p
}

// Validate checks field kinds and selector syntax.
func (p Profile) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(p.Form.Fields))
	for _, f := range p.Form.Fields {
		if f.Name == "" {
			errs = append(errs, errors.New("form field without name"))
			continue
		}
		if _, dup := seen[f.Name]; dup {
			errs = append(errs, fmt.Errorf("form field %q listed twice", f.Name))
		}
		seen[f.Name] = struct{}{}
		if f.Selector == "" {
			errs = append(errs, fmt.Errorf("form field %q has no selector", f.Name))
		}
		switch ports.FieldKind(f.Kind) {
		case ports.FieldInput, ports.FieldSelect, ports.FieldCheckbox:
		default:
			errs = append(errs, fmt.Errorf("form field %q has unknown kind %q", f.Name, f.Kind))
		}
	}
	for _, sel := range append(append([]string{}, p.Success.Selectors...), p.Failure.Selectors...) {
		if _, err := ParseSelector(sel); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("intake: invalid profile %q: %w", p.Name, errors.Join(errs...))
	}
	return nil
}

// FormFields converts the layout into pipeline form fields.
func (p Profile) FormFields() []ports.FormField {
	out := make([]ports.FormField, 0, len(p.Form.Fields))
	for _, f := range p.Form.Fields {
		out = append(out, ports.FormField{Name: f.Name, Selector: f.Selector, Kind: ports.FieldKind(f.Kind)})
	}
	return out
}

// FormPage returns the page that hosts the form.
func (p Profile) FormPage() string {
	if p.FormURL != "" {
		return p.FormURL
	}
	return p.PortalURL
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
