package template

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/notifier/internal/domain"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r := NewRenderer()
	require.NoError(t, r.Register(Template{
		Name:    "announcements",
		Subject: "{{ title }}",
		HTML:    "<h1>{{ title }}</h1><p>Hello {{ name }}, {{ message }}</p>",
	}))
	return r
}

func TestRenderRegisteredTemplate(t *testing.T) {
	r := newTestRenderer(t)

	msg, err := r.Render(domain.NotificationRequest{
		Email:      "student@example.edu",
		TemplateID: "announcements",
		TemplateData: map[string]string{
			"title":   "Snow Day",
			"name":    "Jordan",
			"message": "campus is closed tomorrow.",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Snow Day", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "<h1>Snow Day</h1>")
	assert.Contains(t, msg.HTMLBody, "Hello Jordan, campus is closed tomorrow.")
	// Text derived from HTML when the template has no text part.
	assert.Contains(t, msg.TextBody, "Snow Day")
	assert.NotContains(t, msg.TextBody, "<h1>")
}

func TestRenderMissingVariableRendersEmpty(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Register(Template{Name: "greet", Subject: "hi", HTML: "Hello {{name}}"}))

	msg, err := r.Render(domain.NotificationRequest{
		TemplateID:   "greet",
		TemplateData: map[string]string{},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello ", msg.HTMLBody)
}

func TestRenderIdempotent(t *testing.T) {
	r := newTestRenderer(t)
	req := domain.NotificationRequest{
		TemplateID:   "announcements",
		TemplateData: map[string]string{"title": "Exam Schedule", "name": "Sam", "message": "see attached."},
	}

	first, err := r.Render(req)
	require.NoError(t, err)
	second, err := r.Render(req)
	require.NoError(t, err)

	assert.Equal(t, first.Subject, second.Subject)
	assert.Equal(t, first.HTMLBody, second.HTMLBody)
	assert.Equal(t, first.TextBody, second.TextBody)
	// Each render is a distinct attempt.
	assert.NotEmpty(t, first.MessageID)
	assert.NotEqual(t, first.MessageID, second.MessageID)
}

func TestRenderUnknownTemplateNoBody(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.Render(domain.NotificationRequest{TemplateID: "does-not-exist"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
}

func TestRenderUnknownTemplateFallsBackToLiteralBody(t *testing.T) {
	r := newTestRenderer(t)

	msg, err := r.Render(domain.NotificationRequest{
		TemplateID: "does-not-exist",
		Subject:    "Direct",
		HTMLBody:   "<p>raw body</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "Direct", msg.Subject)
	assert.Equal(t, "<p>raw body</p>", msg.HTMLBody)
	assert.Equal(t, "raw body", msg.TextBody)
}

func TestRenderLiteralBodyWithoutTemplate(t *testing.T) {
	r := NewRenderer()

	msg, err := r.Render(domain.NotificationRequest{
		Subject:  "Plain",
		HTMLBody: "<p>first</p><p>second</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "Plain", msg.Subject)
	assert.Equal(t, "first\nsecond", msg.TextBody)
}

func TestRenderNoTemplateNoBody(t *testing.T) {
	r := NewRenderer()
	_, err := r.Render(domain.NotificationRequest{Subject: "empty"})
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
}

func TestRegisterInvalidTemplate(t *testing.T) {
	r := NewRenderer()
	err := r.Register(Template{Name: "bad", HTML: "{% if %}"})
	assert.Error(t, err)
	assert.False(t, r.Has("bad"))
}

func TestDefaultFilter(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Register(Template{
		Name: "greet",
		HTML: `Hi {{ first_name | default: "there" }}!`,
	}))

	msg, err := r.Render(domain.NotificationRequest{TemplateID: "greet"})
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", msg.HTMLBody)

	msg, err = r.Render(domain.NotificationRequest{
		TemplateID:   "greet",
		TemplateData: map[string]string{"first_name": "Riley"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi Riley!", msg.HTMLBody)
}

func TestHTMLToTextStripsAndWraps(t *testing.T) {
	html := "<html><head><style>p{color:red}</style></head><body>" +
		"<h1>Title</h1><p>" + strings.Repeat("word ", 40) + "</p>" +
		"<ul><li>one</li><li>two</li></ul></body></html>"

	text := HTMLToText(html)

	assert.NotContains(t, text, "<")
	assert.NotContains(t, text, "color:red")
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "- one")
	for _, line := range strings.Split(text, "\n") {
		assert.LessOrEqual(t, len(line), 78, "line exceeds wrap width: %q", line)
	}
}

func TestHTMLToTextDecodesEntities(t *testing.T) {
	assert.Equal(t, "Tom & Jerry", HTMLToText("<p>Tom &amp; Jerry</p>"))
}

func TestNames(t *testing.T) {
	r := newTestRenderer(t)
	require.NoError(t, r.Register(Template{Name: "grades", HTML: "x"}))
	assert.Equal(t, []string{"announcements", "grades"}, r.Names())
}
