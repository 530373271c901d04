// Package render builds the subjects and HTML bodies of outgoing emails.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/foxzi/newsflash/internal/models"
)

const (
	DefaultSiteName = "NewsFlash247"

	digestDateLayout  = "January 02, 2006"
	articleDateLayout = "January 02, 2006 at 03:04 PM"
)

// Rendered is a subject and HTML body ready for the mailer
type Rendered struct {
	Subject string
	HTML    string
}

// Renderer renders the welcome and digest layouts. Templates are parsed once;
// a Renderer is safe for concurrent use.
type Renderer struct {
	siteName string
	siteURL  string
	welcome  *template.Template
	digest   *template.Template
	now      func() time.Time
}

func New(siteName, siteURL string) *Renderer {
	if siteName == "" {
		siteName = DefaultSiteName
	}
	funcs := template.FuncMap{
		"articleDate": func(t time.Time) string { return t.Format(articleDateLayout) },
	}
	return &Renderer{
		siteName: siteName,
		siteURL:  siteURL,
		welcome:  template.Must(template.New("welcome").Funcs(funcs).Parse(welcomeHTML)),
		digest:   template.Must(template.New("digest").Funcs(funcs).Parse(digestHTML)),
		now:      time.Now,
	}
}

// SiteName returns the name used in subjects and layouts
func (r *Renderer) SiteName() string {
	return r.siteName
}

// WelcomeSubject is the subject line of the welcome email
func (r *Renderer) WelcomeSubject() string {
	return fmt.Sprintf("Welcome to %s Newsletter!", r.siteName)
}

// DigestSubject is the subject line of the digest sent on the given day
func (r *Renderer) DigestSubject(day time.Time) string {
	return fmt.Sprintf("%s Daily Digest - %s", r.siteName, day.Format(digestDateLayout))
}

// Welcome renders the message sent after a subscription or reactivation
func (r *Renderer) Welcome() (*Rendered, error) {
	data := map[string]interface{}{
		"SiteName": r.siteName,
		"SiteURL":  r.siteURL,
	}

	var buf bytes.Buffer
	if err := r.welcome.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render welcome: %w", err)
	}
	return &Rendered{Subject: r.WelcomeSubject(), HTML: buf.String()}, nil
}

// digestArticle is the view of an article used by the digest layout
type digestArticle struct {
	Title       string
	Excerpt     string
	Category    string
	IsBreaking  bool
	ViewsCount  int
	ReadingTime int
	CreatedAt   time.Time
}

// Digest renders one shared digest for the given articles, in order
func (r *Renderer) Digest(articles []models.Article) (*Rendered, error) {
	now := r.now()

	items := make([]digestArticle, 0, len(articles))
	for i := range articles {
		a := &articles[i]
		items = append(items, digestArticle{
			Title:       a.Title,
			Excerpt:     a.Excerpt(),
			Category:    a.Category,
			IsBreaking:  a.IsBreaking,
			ViewsCount:  a.ViewsCount,
			ReadingTime: a.ReadingTime(),
			CreatedAt:   a.CreatedAt,
		})
	}

	data := map[string]interface{}{
		"SiteName": r.siteName,
		"SiteURL":  r.siteURL,
		"Date":     now.Format(digestDateLayout),
		"Year":     now.Year(),
		"Articles": items,
	}

	var buf bytes.Buffer
	if err := r.digest.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render digest: %w", err)
	}
	return &Rendered{Subject: r.DigestSubject(now), HTML: buf.String()}, nil
}
