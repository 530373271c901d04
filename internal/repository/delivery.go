package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/foxzi/newsflash/internal/models"
	"github.com/google/uuid"
)

// DeliveryLogRepository is the append-only audit trail of delivery attempts.
// Entries are created pending and completed exactly once; nothing is deleted.
type DeliveryLogRepository struct {
	db *sql.DB
}

func NewDeliveryLogRepository(db *sql.DB) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

const deliveryColumns = `id, recipient_email, subject, category, status, error, created_at, sent_at`

// Create records a new pending attempt and returns its ID
func (r *DeliveryLogRepository) Create(ctx context.Context, entry *models.DeliveryLogEntry) (string, error) {
	if entry.Status == "" {
		entry.Status = models.DeliveryPending
	}
	if entry.Status != models.DeliveryPending {
		return "", fmt.Errorf("create entry in %s state: %w", entry.Status, ErrInvalidTransition)
	}
	if entry.Category == "" {
		entry.Category = models.CategoryGeneral
	}
	if !entry.Category.Valid() {
		return "", fmt.Errorf("unknown category %q", entry.Category)
	}

	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now().UTC()
	entry.Error = ""
	entry.SentAt = nil

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_logs (id, recipient_email, subject, category, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RecipientEmail, entry.Subject, entry.Category, entry.Status, entry.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create delivery log entry: %w", err)
	}
	return entry.ID, nil
}

// Complete moves a pending entry to sent or failed. Any other transition,
// including completing an entry twice, returns ErrInvalidTransition.
func (r *DeliveryLogRepository) Complete(ctx context.Context, id string, status models.DeliveryStatus, detail string) error {
	if !models.DeliveryPending.CanTransition(status) {
		return fmt.Errorf("pending -> %s: %w", status, ErrInvalidTransition)
	}

	var (
		res sql.Result
		err error
	)
	switch status {
	case models.DeliverySent:
		res, err = r.db.ExecContext(ctx, `
			UPDATE delivery_logs SET status = ?, sent_at = ?
			WHERE id = ? AND status = ?`,
			status, time.Now().UTC(), id, models.DeliveryPending,
		)
	case models.DeliveryFailed:
		if detail == "" {
			detail = "unknown error"
		}
		res, err = r.db.ExecContext(ctx, `
			UPDATE delivery_logs SET status = ?, error = ?
			WHERE id = ? AND status = ?`,
			status, detail, id, models.DeliveryPending,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to complete delivery log entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	existing, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotFound
	}
	return fmt.Errorf("entry %s is already %s: %w", id, existing.Status, ErrInvalidTransition)
}

// Get returns an entry by ID, or nil if there is none
func (r *DeliveryLogRepository) Get(ctx context.Context, id string) (*models.DeliveryLogEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deliveryColumns+` FROM delivery_logs WHERE id = ?`, id)
	entry, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns entries with filtering, newest first, and the total matching count
func (r *DeliveryLogRepository) List(ctx context.Context, filter models.DeliveryLogFilter) ([]models.DeliveryLogEntry, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.Recipient != "" {
		where += " AND recipient_email = ?"
		args = append(args, filter.Recipient)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		where += " AND category = ?"
		args = append(args, filter.Category)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM delivery_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + deliveryColumns + " FROM delivery_logs" + where + " ORDER BY created_at DESC, id"
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

	entries := []models.DeliveryLogEntry{}
	for rows.Next() {
		entry, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Stats counts entries by status, plus sends completed at or after since
func (r *DeliveryLogRepository) Stats(ctx context.Context, since time.Time) (*models.DeliveryStats, error) {
	stats := &models.DeliveryStats{}

	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM delivery_logs GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status models.DeliveryStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch status {
		case models.DeliveryPending:
			stats.Pending = n
		case models.DeliverySent:
			stats.Sent = n
		case models.DeliveryFailed:
			stats.Failed = n
		}
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM delivery_logs WHERE status = ? AND sent_at >= ?",
		models.DeliverySent, since.UTC(),
	).Scan(&stats.SentSince)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func scanDelivery(s rowScanner) (*models.DeliveryLogEntry, error) {
	entry := &models.DeliveryLogEntry{}
	var errText sql.NullString
	var sentAt sql.NullTime
	err := s.Scan(&entry.ID, &entry.RecipientEmail, &entry.Subject, &entry.Category, &entry.Status,
		&errText, &entry.CreatedAt, &sentAt)
	if err != nil {
		return nil, err
	}
	entry.Error = errText.String
	if sentAt.Valid {
		t := sentAt.Time
		entry.SentAt = &t
	}
	return entry, nil
}
