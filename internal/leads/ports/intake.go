package ports

import "context"

// FieldKind selects how a form field is populated.
type FieldKind string

const (
	FieldInput    FieldKind = "input"
	FieldSelect   FieldKind = "select"
	FieldCheckbox FieldKind = "checkbox"
)

// FormField is one value to place into the intake form.
type FormField struct {
	Name     string
	Selector string
	Kind     FieldKind
	Value    string
}

// IntakePage is a snapshot of the page after an interaction.
type IntakePage struct {
	URL   string
	Title string
	HTML  string
}

// IntakeSurface opens sessions against the partner intake portal.
type IntakeSurface interface {
	Open(ctx context.Context) (IntakeSession, error)
}

// IntakeSession is one browser session. Workers treat it as a black box.
type IntakeSession interface {
	// Authenticate logs in, tolerating an already authenticated session.
	Authenticate(ctx context.Context) error
	OpenForm(ctx context.Context) error
	Fill(ctx context.Context, field FormField) error
	// CheckFirst ticks the first checkbox present among selectors and returns
	// the selector used, or "" when none was present.
	CheckFirst(ctx context.Context, selectors []string) (string, error)
	Submit(ctx context.Context) (IntakePage, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// ArtifactStore keeps recordings and screenshots.
type ArtifactStore interface {
	// Upload stores data under key and returns a location URL.
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// SubmissionVerdict is the outcome of classifying a post-submit page.
type SubmissionVerdict struct {
	Success bool
	// Rule names the classifier layer that decided.
	Rule string
	// Defaulted is true when no layer matched and the fallback applied.
	Defaulted bool
}

// SubmissionClassifier decides whether a submission succeeded and pulls the
// portal's error message out of a failed one.
type SubmissionClassifier interface {
	Classify(page IntakePage) SubmissionVerdict
	ExtractError(page IntakePage) string
}
