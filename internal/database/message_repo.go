package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/medbook/medbook/internal/domain"
)

// MessageRepository handles chat message persistence. The store is
// append-only: messages are never updated or deleted here.
type MessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create persists a chat message. The store assigns the identifier and
// creation timestamp before insert.
func (r *MessageRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO messages (id, appointment_id, sender_id, body_text, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.AppointmentID, msg.SenderID, msg.Body, msg.CreatedAt)
	return err
}

// ListByAppointment retrieves messages with cursor pagination (before timestamp)
func (r *MessageRepository) ListByAppointment(ctx context.Context, apptID uuid.UUID, before *time.Time, limit int) ([]domain.ChatMessage, error) {
	var rows pgx.Rows
	var err error

	if before != nil {
		rows, err = r.db.Pool.Query(ctx, `
			SELECT m.id, m.appointment_id, m.sender_id, m.body_text, m.created_at,
			       u.id, u.name, u.role
			FROM messages m
			JOIN users u ON u.id = m.sender_id
			WHERE m.appointment_id = $1 AND m.created_at < $2
			ORDER BY m.created_at DESC
			LIMIT $3
		`, apptID, before, limit)
	} else {
		rows, err = r.db.Pool.Query(ctx, `
			SELECT m.id, m.appointment_id, m.sender_id, m.body_text, m.created_at,
			       u.id, u.name, u.role
			FROM messages m
			JOIN users u ON u.id = m.sender_id
			WHERE m.appointment_id = $1
			ORDER BY m.created_at DESC
			LIMIT $2
		`, apptID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		var sender domain.PublicUser
		err := rows.Scan(
			&m.ID, &m.AppointmentID, &m.SenderID, &m.Body, &m.CreatedAt,
			&sender.ID, &sender.Name, &sender.Role,
		)
		if err != nil {
			return nil, err
		}
		m.Sender = &sender
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
