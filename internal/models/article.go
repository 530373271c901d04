package models

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// excerptRunes is how much of the content is shown when an article has no summary
const excerptRunes = 200

// Article is a published news story that can be featured in a newsletter
type Article struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Summary     string     `json:"summary,omitempty"`
	Category    string     `json:"category"`
	IsBreaking  bool       `json:"is_breaking"`
	IsPublished bool       `json:"is_published"`
	ViewsCount  int        `json:"views_count"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// ReadingTime returns the estimated reading time in minutes (200 words per minute, at least 1)
func (a *Article) ReadingTime() int {
	words := len(strings.Fields(a.Content))
	minutes := int(math.RoundToEven(float64(words) / 200))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// Excerpt returns the summary, or the beginning of the content when there is none
func (a *Article) Excerpt() string {
	if a.Summary != "" {
		return a.Summary
	}
	if utf8.RuneCountInString(a.Content) <= excerptRunes {
		return a.Content + "..."
	}
	return string([]rune(a.Content)[:excerptRunes]) + "..."
}
