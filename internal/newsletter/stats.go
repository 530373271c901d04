package newsletter

import (
	"context"
	"fmt"
	"time"

	"github.com/foxzi/newsflash/internal/models"
)

// StatsSources are the read models the dashboard numbers come from
type StatsSources struct {
	Subscribers interface {
		CountActive(ctx context.Context) (int, error)
	}
	Articles interface {
		CountPublished(ctx context.Context) (int, error)
	}
	Deliveries interface {
		Stats(ctx context.Context, since time.Time) (*models.DeliveryStats, error)
	}
}

// Stats is the newsletter overview shown to operators
type Stats struct {
	ActiveSubscribers int                   `json:"active_subscribers"`
	PublishedArticles int                   `json:"published_articles"`
	EmailsSentToday   int                   `json:"emails_sent_today"`
	Deliveries        *models.DeliveryStats `json:"deliveries"`
}

// CollectStats gathers the overview. "Today" starts at midnight UTC of now.
func CollectStats(ctx context.Context, src StatsSources, now time.Time) (*Stats, error) {
	active, err := src.Subscribers.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("count subscribers: %w", err)
	}
	published, err := src.Articles.CountPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("count articles: %w", err)
	}

	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	deliveries, err := src.Deliveries.Stats(ctx, midnight)
	if err != nil {
		return nil, fmt.Errorf("delivery stats: %w", err)
	}

	return &Stats{
		ActiveSubscribers: active,
		PublishedArticles: published,
		EmailsSentToday:   deliveries.SentSince,
		Deliveries:        deliveries,
	}, nil
}
