// Package template resolves named delivery templates and renders them with
// per-recipient data using the Liquid template language.
package template

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/osteele/liquid"

	"github.com/campuslink/notifier/internal/domain"
	"github.com/campuslink/notifier/internal/pkg/logger"
)

var log = logger.New("template")

// ErrTemplateNotFound is returned when a request names an unregistered
// template and carries no literal body. Fatal to that single item only;
// the dispatcher isolates it from the rest of the batch.
var ErrTemplateNotFound = errors.New("template not found")

// Template is one pre-registered delivery template. Subject, HTML, and
// Text all accept {{ variable }} placeholders.
type Template struct {
	Name    string
	Subject string
	HTML    string
	Text    string
}

type compiled struct {
	subject *liquid.Template
	html    *liquid.Template
	text    *liquid.Template
}

// Renderer renders notification requests into ready-to-send messages.
// Same template and data always yield identical bodies; only the message
// ID differs per call. A missing variable renders as an empty string and
// is logged, never an error -- templating problems must not block an
// otherwise-valid send.
type Renderer struct {
	engine    *liquid.Engine
	mu        sync.RWMutex
	templates map[string]Template
	compiled  map[string]*compiled
}

// NewRenderer creates a renderer with the pipeline's custom filters.
func NewRenderer() *Renderer {
	r := &Renderer{
		engine:    liquid.NewEngine(),
		templates: make(map[string]Template),
		compiled:  make(map[string]*compiled),
	}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// Fallback value: {{ first_name | default: "there" }}
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Capitalize first letter: {{ name | capitalize }}
	r.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + s[1:]
	})
}

// Register compiles and stores a named template. Returns an error for
// invalid Liquid syntax in any of its parts.
func (r *Renderer) Register(t Template) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template name is required")
	}

	c := &compiled{}
	var err error
	if c.subject, err = r.engine.ParseString(t.Subject); err != nil {
		return fmt.Errorf("template %q subject: %w", t.Name, err)
	}
	if c.html, err = r.engine.ParseString(t.HTML); err != nil {
		return fmt.Errorf("template %q html: %w", t.Name, err)
	}
	if c.text, err = r.engine.ParseString(t.Text); err != nil {
		return fmt.Errorf("template %q text: %w", t.Name, err)
	}

	r.mu.Lock()
	r.templates[t.Name] = t
	r.compiled[t.Name] = c
	r.mu.Unlock()
	return nil
}

// Has reports whether a template is registered under the given name.
func (r *Renderer) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// Names returns the registered template names, sorted.
func (r *Renderer) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render resolves the request's template (or literal body) into a
// RenderedMessage carrying a freshly generated message ID.
//
// Resolution order: a registered template named by TemplateID wins; a
// request without TemplateID must carry an HTML body. An unregistered
// TemplateID with no fallback body fails with ErrTemplateNotFound.
func (r *Renderer) Render(req domain.NotificationRequest) (*domain.RenderedMessage, error) {
	if req.TemplateID == "" {
		return r.renderLiteral(req)
	}

	r.mu.RLock()
	t, ok := r.templates[req.TemplateID]
	c := r.compiled[req.TemplateID]
	r.mu.RUnlock()

	if !ok {
		if strings.TrimSpace(req.HTMLBody) != "" {
			// Unknown template but a literal body was supplied; deliver that.
			log.Warn("unknown template, falling back to literal body", "template", req.TemplateID)
			return r.renderLiteral(req)
		}
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, req.TemplateID)
	}

	ctx := bindings(req.TemplateData)
	r.logMissingVariables(req.TemplateID, t, req.TemplateData)

	subject, err := c.subject.RenderString(ctx)
	if err != nil {
		return nil, fmt.Errorf("rendering subject of %q: %w", req.TemplateID, err)
	}
	if strings.TrimSpace(subject) == "" {
		subject = req.Subject
	}
	html, err := c.html.RenderString(ctx)
	if err != nil {
		return nil, fmt.Errorf("rendering html of %q: %w", req.TemplateID, err)
	}
	text, err := c.text.RenderString(ctx)
	if err != nil {
		return nil, fmt.Errorf("rendering text of %q: %w", req.TemplateID, err)
	}
	if strings.TrimSpace(text) == "" {
		text = HTMLToText(html)
	}

	return &domain.RenderedMessage{
		MessageID:    uuid.New().String(),
		Subject:      subject,
		HTMLBody:     html,
		TextBody:     text,
		TemplateID:   req.TemplateID,
		TemplateData: req.TemplateData,
	}, nil
}

// renderLiteral builds a message from the request's own subject and body.
func (r *Renderer) renderLiteral(req domain.NotificationRequest) (*domain.RenderedMessage, error) {
	if strings.TrimSpace(req.HTMLBody) == "" {
		return nil, fmt.Errorf("%w: request has neither template nor body", ErrTemplateNotFound)
	}
	text := req.TextBody
	if strings.TrimSpace(text) == "" {
		text = HTMLToText(req.HTMLBody)
	}
	return &domain.RenderedMessage{
		MessageID: uuid.New().String(),
		Subject:   req.Subject,
		HTMLBody:  req.HTMLBody,
		TextBody:  text,
	}, nil
}

func bindings(data map[string]string) map[string]interface{} {
	ctx := make(map[string]interface{}, len(data))
	for k, v := range data {
		ctx[k] = v
	}
	return ctx
}

// varPattern finds {{ variable }} references, including filtered and
// dotted forms.
var varPattern = regexp.MustCompile(`\{\{-?\s*([a-zA-Z_][a-zA-Z0-9_.]*)`)

// logMissingVariables flags template variables absent from the data map.
// Liquid renders them as empty strings; we only surface the gap.
func (r *Renderer) logMissingVariables(name string, t Template, data map[string]string) {
	seen := make(map[string]bool)
	for _, src := range []string{t.Subject, t.HTML, t.Text} {
		for _, m := range varPattern.FindAllStringSubmatch(src, -1) {
			v := strings.SplitN(m[1], ".", 2)[0]
			if seen[v] {
				continue
			}
			seen[v] = true
			if _, ok := data[v]; !ok {
				log.Debug("template variable missing from data", "template", name, "variable", v)
			}
		}
	}
}
