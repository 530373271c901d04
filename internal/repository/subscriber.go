package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/foxzi/newsflash/internal/models"
	"github.com/google/uuid"
)

type SubscriberRepository struct {
	db *sql.DB
}

func NewSubscriberRepository(db *sql.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

const subscriberColumns = `id, email, active, token, subscribed_at, last_sent_at, sent_count`

// Create inserts a new subscriber. Returns ErrConflict if the email or token is taken.
func (r *SubscriberRepository) Create(ctx context.Context, sub *models.Subscriber) error {
	if sub.Token == "" {
		return fmt.Errorf("subscriber token is required")
	}
	sub.ID = uuid.New().String()
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = time.Now()
	}
	sub.SubscribedAt = sub.SubscribedAt.UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscribers (id, email, active, token, subscribed_at, last_sent_at, sent_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Email, sub.Active, sub.Token, sub.SubscribedAt, sub.LastSentAt, sub.SentCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("subscriber %s: %w", sub.Email, ErrConflict)
		}
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	return nil
}

// GetByEmail returns a subscriber by email, or nil if there is none
func (r *SubscriberRepository) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE email = ?`, email)
	return scanSubscriberRow(row)
}

// GetByToken returns a subscriber by subscription token, or nil if there is none
func (r *SubscriberRepository) GetByToken(ctx context.Context, token string) (*models.Subscriber, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE token = ?`, token)
	return scanSubscriberRow(row)
}

// Reactivate marks an existing subscriber active again and resets its subscription time
func (r *SubscriberRepository) Reactivate(ctx context.Context, id string, at time.Time) error {
	return r.setActive(ctx, `UPDATE subscribers SET active = 1, subscribed_at = ? WHERE id = ?`, at.UTC(), id)
}

// Deactivate stops sends to a subscriber without deleting the record
func (r *SubscriberRepository) Deactivate(ctx context.Context, id string) error {
	return r.setActive(ctx, `UPDATE subscribers SET active = 0 WHERE id = ?`, id)
}

func (r *SubscriberRepository) setActive(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive returns all active subscribers in subscription order
func (r *SubscriberRepository) ListActive(ctx context.Context) ([]models.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subscriberColumns+`
		FROM subscribers WHERE active = 1
		ORDER BY subscribed_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSubscribers(rows)
}

// List returns subscribers with filtering, newest first, and the total matching count
func (r *SubscriberRepository) List(ctx context.Context, filter models.SubscriberFilter) ([]models.Subscriber, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.Search != "" {
		where += " AND email LIKE ?"
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Active != nil {
		where += " AND active = ?"
		args = append(args, *filter.Active)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM subscribers"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + subscriberColumns + " FROM subscribers" + where + " ORDER BY subscribed_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	subs, err := scanSubscribers(rows)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

// CountActive returns the number of active subscribers
func (r *SubscriberRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM subscribers WHERE active = 1").Scan(&n)
	return n, err
}

// RecordSends applies a batch of successful deliveries in a single transaction:
// last_sent_at is set and sent_count incremented for each matching subscriber.
// Records for unknown emails are skipped. Returns the number of rows updated.
func (r *SubscriberRepository) RecordSends(ctx context.Context, records []models.SendRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE subscribers SET last_sent_at = ?, sent_count = sent_count + 1
		WHERE email = ?`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	updated := 0
	for _, rec := range records {
		res, err := stmt.ExecContext(ctx, rec.SentAt.UTC(), rec.Email)
		if err != nil {
			return 0, fmt.Errorf("failed to record send for %s: %w", rec.Email, err)
		}
		n, _ := res.RowsAffected()
		updated += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit send records: %w", err)
	}
	return updated, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(s rowScanner) (*models.Subscriber, error) {
	sub := &models.Subscriber{}
	var lastSent sql.NullTime
	err := s.Scan(&sub.ID, &sub.Email, &sub.Active, &sub.Token, &sub.SubscribedAt, &lastSent, &sub.SentCount)
	if err != nil {
		return nil, err
	}
	if lastSent.Valid {
		t := lastSent.Time
		sub.LastSentAt = &t
	}
	return sub, nil
}

func scanSubscriberRow(row *sql.Row) (*models.Subscriber, error) {
	sub, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func scanSubscribers(rows *sql.Rows) ([]models.Subscriber, error) {
	subs := []models.Subscriber{}
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
