package content

import (
	"strings"
	"time"
)

// Sender identifies who a message is from, as shown to the reader.
type Sender struct {
	Name  string
	Email string
}

// Input is everything needed to render one message.
type Input struct {
	Template    string
	Recipient   string
	Subject     string
	Sender      Sender
	PreviewText string
}

// Rendered is the per-recipient output of the pipeline.
type Rendered struct {
	Subject       string
	Text          string
	HTML          string
	TrackingToken string
	Warnings      []string
}

// Env is the per-render state shared by steps.
type Env struct {
	Recipient string
	warnings  []string
}

// Warn records a non-fatal content problem.
func (e *Env) Warn(msg ...string) {
	e.warnings = append(e.warnings, msg...)
}

// Step is one body transform. Steps run in order and must be pure.
type Step struct {
	Name  string
	Apply func(doc string, env *Env) string
}

// DefaultSteps returns the body pipeline applied to fragment templates
// (steps 3 to 7).
func DefaultSteps() []Step {
	return []Step{
		{Name: "markdown-links", Apply: func(doc string, env *Env) string {
			out, warnings := ConvertMarkdownLinks(doc)
			env.Warn(warnings...)
			return out
		}},
		{Name: "linkify", Apply: func(doc string, _ *Env) string { return LinkifyURLs(doc) }},
		{Name: "cta-buttons", Apply: func(doc string, env *Env) string {
			out, warnings := ButtonizeCallsToAction(doc)
			env.Warn(warnings...)
			return out
		}},
		InstrumentStep(),
		{Name: "paragraphs", Apply: func(doc string, _ *Env) string { return WrapParagraphs(doc) }},
	}
}

// InstrumentStep appends the recipient fragment to outbound links.
func InstrumentStep() Step {
	return Step{Name: "instrument", Apply: func(doc string, env *Env) string {
		return InstrumentLinks(doc, env.Recipient)
	}}
}

// Transformer renders templates. It holds no mutable state after
// construction and is safe for concurrent use.
type Transformer struct {
	steps           []Step
	documentSteps   []Step
	now             func() time.Time
	physicalAddress string
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithClock overrides the clock used for the footer year.
func WithClock(now func() time.Time) Option {
	return func(t *Transformer) { t.now = now }
}

// WithPhysicalAddress sets the postal address printed in the footer.
func WithPhysicalAddress(addr string) Option {
	return func(t *Transformer) { t.physicalAddress = addr }
}

// WithSteps replaces the body pipeline used for fragment templates.
func WithSteps(steps ...Step) Option {
	return func(t *Transformer) { t.steps = steps }
}

// New creates a Transformer with the default pipeline.
func New(opts ...Option) *Transformer {
	t := &Transformer{
		steps:         DefaultSteps(),
		documentSteps: []Step{InstrumentStep()},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Render runs the pipeline for one recipient. It never fails; problems are
// reported through Rendered.Warnings.
func (t *Transformer) Render(in Input) Rendered {
	env := &Env{Recipient: in.Recipient}
	subject := SubstitutePlaceholders(in.Subject, in.Recipient)

	doc := strings.ReplaceAll(in.Template, "\r\n", "\n")
	doc = SubstitutePlaceholders(doc, in.Recipient)

	var htmlDoc, text string
	if IsFullDocument(doc) {
		for _, step := range t.documentSteps {
			doc = step.Apply(doc, env)
		}
		htmlDoc = doc
		text = PlainText(doc)
	} else {
		for _, step := range t.steps {
			doc = step.Apply(doc, env)
		}
		text = PlainText(doc)

		senderName := in.Sender.Name
		if senderName == "" {
			senderName = in.Sender.Email
		}
		var warnings []string
		htmlDoc, warnings = AssembleDocument(ShellData{
			Title:           subject,
			Body:            doc,
			Year:            t.now().Year(),
			SenderName:      senderName,
			PhysicalAddress: t.physicalAddress,
		})
		env.Warn(warnings...)
	}

	return Rendered{
		Subject:       subject,
		Text:          text,
		HTML:          InjectPreviewText(htmlDoc, in.PreviewText),
		TrackingToken: in.Recipient,
		Warnings:      env.warnings,
	}
}
