// Package certificate turns student records into bonafide, transfer and
// leaving certificates using the built-in or a custom template.
package certificate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/ByLCY/certforge/dsl"
	"github.com/ByLCY/certforge/layout"
	"github.com/ByLCY/certforge/records"
	"github.com/ByLCY/certforge/renderer"
)

const (
	dateLayout     = "2006-01-02"
	defaultPurpose = "official use"
)

// Request describes one certificate to issue.
type Request struct {
	Kind    Kind
	Student records.Student
	// Serial defaults to <abbrev>/<admission no>/<year>.
	Serial string
	// Issued defaults to the current date.
	Issued  time.Time
	Purpose string
	// Template overrides the built-in template for Kind.
	Template *dsl.Template
}

// Generator lays out and renders certificates. Measurer may be left nil when
// Renderer also measures text; the two must agree on fonts.
type Generator struct {
	Measurer layout.Measurer
	Renderer renderer.Renderer
	School   records.School
	Logger   *slog.Logger
	// Now is used for default issue dates.
	Now func() time.Time
}

// Layout binds the request data into its template and computes positions.
func (g *Generator) Layout(ctx context.Context, req Request) (*layout.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Student.Validate(); err != nil {
		return nil, err
	}
	measurer, err := g.measurer()
	if err != nil {
		return nil, err
	}
	tpl := req.Template
	if tpl == nil {
		if tpl, err = Template(req.Kind); err != nil {
			return nil, err
		}
	}

	logger := g.logger().With("kind", string(req.Kind), "admission_no", req.Student.AdmissionNo)
	res, err := layout.Build(tpl, g.Data(req), layout.BuildOptions{Measurer: measurer, Logger: logger})
	if err != nil {
		return nil, errors.Wrapf(err, "layout %s certificate", req.Kind)
	}
	logger.Info("certificate laid out", "template", tpl.Name, "paragraphs", len(res.Page.Paragraphs),
		"contentBottom", res.Page.ContentBottom)
	return res, nil
}

// Generate runs Layout and renders the result.
func (g *Generator) Generate(ctx context.Context, req Request) ([]byte, error) {
	if g.Renderer == nil {
		return nil, errors.New("certificate: generator has no renderer")
	}
	res, err := g.Layout(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := g.Renderer.Render(res)
	if err != nil {
		return nil, errors.Wrapf(err, "render %s certificate", req.Kind)
	}
	return out, nil
}

// Data returns the binding tree exposed to templates: school, student,
// serial, issued, purpose and kind.
func (g *Generator) Data(req Request) map[string]any {
	issued := req.Issued
	if issued.IsZero() {
		issued = g.now()
	}
	serial := req.Serial
	if serial == "" {
		serial = fmt.Sprintf("%s/%s/%d", req.Kind.Abbrev(), req.Student.AdmissionNo, issued.Year())
	}
	purpose := req.Purpose
	if purpose == "" {
		purpose = defaultPurpose
	}
	return map[string]any{
		"school":  g.School.Data(),
		"student": req.Student.Data(),
		"serial":  serial,
		"issued":  issued.Format(dateLayout),
		"purpose": purpose,
		"kind":    string(req.Kind),
	}
}

func (g *Generator) measurer() (layout.Measurer, error) {
	if g.Measurer != nil {
		return g.Measurer, nil
	}
	if m, ok := g.Renderer.(layout.Measurer); ok {
		return m, nil
	}
	return nil, errors.New("certificate: generator has no measurer")
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}
