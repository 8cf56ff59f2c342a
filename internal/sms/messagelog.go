package sms

import (
	"context"
	"database/sql"
	"time"
)

// Direction of a logged message.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// MessageLog records every message sid we have seen so delivery-status
// callbacks have a row to land on and inbound dedup has an audit trail.
type MessageLog struct {
	db *sql.DB
}

func NewMessageLog(db *sql.DB) *MessageLog {
	return &MessageLog{db: db}
}

// Record upserts a message row. Status callbacks can arrive before the
// send call returns, so the upsert never assumes insertion order.
func (m *MessageLog) Record(ctx context.Context, sid, phone, direction, status, body string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO message_log (message_sid, phone, direction, delivery_status, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (message_sid) DO UPDATE
		SET delivery_status = EXCLUDED.delivery_status, updated_at = EXCLUDED.updated_at`,
		sid, phone, direction, status, body, time.Now().UTC())
	return err
}

// UpdateStatus applies a delivery-status callback. Unknown sids are
// upserted with what we know; the provider is the source of truth here.
func (m *MessageLog) UpdateStatus(ctx context.Context, sid, status string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO message_log (message_sid, phone, direction, delivery_status, body, created_at, updated_at)
		VALUES ($1, '', $2, $3, '', $4, $4)
		ON CONFLICT (message_sid) DO UPDATE
		SET delivery_status = EXCLUDED.delivery_status, updated_at = EXCLUDED.updated_at`,
		sid, DirectionOutbound, status, time.Now().UTC())
	return err
}
