package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"shopmail/internal/types"
)

// NotificationRepository provides data access for the notifications table:
// one row per send attempt, queried back for the resend API and the
// per-resource delivery history.
type NotificationRepository struct {
	db DBTX
}

var _ types.NotificationRepository = (*NotificationRepository)(nil)

func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert persists one send attempt. The caller assigns the ID; created_at
// defaults to NOW() when unset so hand-built records stay valid.
func (r *NotificationRepository) Insert(ctx context.Context, rec *types.NotificationRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications
		 (id, event_type, resource_id, recipient, template_id, status,
		  payload, provider_message_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))`,
		rec.ID,
		string(rec.EventType),
		rec.ResourceID,
		rec.To,
		nilIfEmpty(rec.TemplateID),
		string(rec.Status),
		rec.Payload,
		nilIfEmpty(rec.ProviderID),
		nilIfZeroTime(rec.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert notification", err)
	}
	return nil
}

// Get retrieves one notification record by id.
func (r *NotificationRepository) Get(ctx context.Context, id string) (*types.NotificationRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, event_type, resource_id, recipient, template_id, status,
		        payload, provider_message_id, created_at
		 FROM notifications WHERE id = $1`,
		id,
	)

	rec, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve notification", err)
	}
	return rec, nil
}

// ListByResource retrieves the send history for one resource (an order, gift
// card, ...), newest first.
func (r *NotificationRepository) ListByResource(ctx context.Context, resourceID string) ([]types.NotificationRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_type, resource_id, recipient, template_id, status,
		        payload, provider_message_id, created_at
		 FROM notifications
		 WHERE resource_id = $1
		 ORDER BY created_at DESC`,
		resourceID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notifications", err)
	}
	defer rows.Close()

	var results []types.NotificationRecord
	for rows.Next() {
		rec, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification row", scanErr)
		}
		results = append(results, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notification rows", err)
	}
	return results, nil
}

func scanNotification(row pgx.Row) (*types.NotificationRecord, error) {
	var rec types.NotificationRecord
	var eventType, status string
	var templateID, providerID *string

	err := row.Scan(
		&rec.ID, &eventType, &rec.ResourceID, &rec.To, &templateID, &status,
		&rec.Payload, &providerID, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.EventType = types.EventType(eventType)
	rec.Status = types.DeliveryStatus(status)
	if templateID != nil {
		rec.TemplateID = *templateID
	}
	if providerID != nil {
		rec.ProviderID = *providerID
	}
	return &rec, nil
}
