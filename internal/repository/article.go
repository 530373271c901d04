package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/foxzi/newsflash/internal/models"
	"github.com/google/uuid"
)

// ArticleRepository is the read side of the article feed that newsletters draw from
type ArticleRepository struct {
	db *sql.DB
}

func NewArticleRepository(db *sql.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

const articleColumns = `id, title, content, summary, category, is_breaking, is_published, views_count, created_at, published_at`

// Create inserts an article
func (r *ArticleRepository) Create(ctx context.Context, a *models.Article) error {
	a.ID = uuid.New().String()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	if a.Category == "" {
		a.Category = "General"
	}
	if a.IsPublished && a.PublishedAt == nil {
		t := a.CreatedAt
		a.PublishedAt = &t
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO articles (`+articleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Content, a.Summary, a.Category, a.IsBreaking, a.IsPublished, a.ViewsCount, a.CreatedAt, a.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create article: %w", err)
	}
	return nil
}

// ListRecentPublished returns up to limit published articles, newest first
func (r *ArticleRepository) ListRecentPublished(ctx context.Context, limit int) ([]models.Article, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+articleColumns+`
		FROM articles WHERE is_published = 1
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	articles := []models.Article{}
	for rows.Next() {
		var a models.Article
		var summary sql.NullString
		var publishedAt sql.NullTime
		err := rows.Scan(&a.ID, &a.Title, &a.Content, &summary, &a.Category, &a.IsBreaking, &a.IsPublished,
			&a.ViewsCount, &a.CreatedAt, &publishedAt)
		if err != nil {
			return nil, err
		}
		a.Summary = summary.String
		if publishedAt.Valid {
			t := publishedAt.Time
			a.PublishedAt = &t
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// CountPublished returns the number of published articles
func (r *ArticleRepository) CountPublished(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles WHERE is_published = 1").Scan(&n)
	return n, err
}
