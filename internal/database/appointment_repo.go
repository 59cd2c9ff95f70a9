package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/medbook/medbook/internal/domain"
)

// AppointmentRepository handles appointment data access. It is also the
// directory the chat subsystem consults to learn which two identities are
// allowed into an appointment's room.
type AppointmentRepository struct {
	db *DB
}

func NewAppointmentRepository(db *DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// Create books a new appointment
func (r *AppointmentRepository) Create(ctx context.Context, appt *domain.Appointment) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, scheduled_at, status, fees_cents)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, appt.ID, appt.PatientID, appt.DoctorID, appt.ScheduledAt, appt.Status, appt.FeesCents)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrSlotTaken
	}
	return err
}

// GetByID retrieves an appointment by ID
func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	appt := &domain.Appointment{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, patient_id, doctor_id, scheduled_at, status, fees_cents, created_at, updated_at
		FROM appointments WHERE id = $1
	`, id).Scan(
		&appt.ID, &appt.PatientID, &appt.DoctorID, &appt.ScheduledAt,
		&appt.Status, &appt.FeesCents, &appt.CreatedAt, &appt.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAppointmentNotFound
	}
	return appt, err
}

// GetByIDWithUsers retrieves an appointment with both participants populated
func (r *AppointmentRepository) GetByIDWithUsers(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	appt := &domain.Appointment{}
	var patient, doctor domain.PublicUser
	err := r.db.Pool.QueryRow(ctx, `
		SELECT a.id, a.patient_id, a.doctor_id, a.scheduled_at, a.status, a.fees_cents,
		       a.created_at, a.updated_at,
		       p.id, p.name, p.role,
		       d.id, d.name, d.role
		FROM appointments a
		JOIN users p ON p.id = a.patient_id
		JOIN users d ON d.id = a.doctor_id
		WHERE a.id = $1
	`, id).Scan(
		&appt.ID, &appt.PatientID, &appt.DoctorID, &appt.ScheduledAt,
		&appt.Status, &appt.FeesCents, &appt.CreatedAt, &appt.UpdatedAt,
		&patient.ID, &patient.Name, &patient.Role,
		&doctor.ID, &doctor.Name, &doctor.Role,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	appt.Patient = &patient
	appt.Doctor = &doctor
	return appt, nil
}

// ListForUser returns appointments where the user is the patient or the doctor
func (r *AppointmentRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Appointment, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, patient_id, doctor_id, scheduled_at, status, fees_cents, created_at, updated_at
		FROM appointments
		WHERE patient_id = $1 OR doctor_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []domain.Appointment
	for rows.Next() {
		var a domain.Appointment
		err := rows.Scan(
			&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduledAt,
			&a.Status, &a.FeesCents, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

// IsParticipant checks if a user is the patient or the doctor of an appointment
func (r *AppointmentRepository) IsParticipant(ctx context.Context, apptID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM appointments
			WHERE id = $1 AND (patient_id = $2 OR doctor_id = $2)
		)
	`, apptID, userID).Scan(&exists)
	return exists, err
}

// UpdateStatus transitions an appointment to a new status
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AppointmentStatus) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAppointmentNotFound
	}
	return nil
}
