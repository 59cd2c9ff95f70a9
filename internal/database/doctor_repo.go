package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/medbook/medbook/internal/domain"
)

// DoctorRepository handles doctor profile data access
type DoctorRepository struct {
	db *DB
}

func NewDoctorRepository(db *DB) *DoctorRepository {
	return &DoctorRepository{db: db}
}

// Upsert creates or updates a doctor profile
func (r *DoctorRepository) Upsert(ctx context.Context, profile *domain.DoctorProfile) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO doctor_profiles (user_id, specialty, degree, experience_years, fees_cents, about, available)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			specialty = EXCLUDED.specialty,
			degree = EXCLUDED.degree,
			experience_years = EXCLUDED.experience_years,
			fees_cents = EXCLUDED.fees_cents,
			about = EXCLUDED.about,
			available = EXCLUDED.available,
			updated_at = NOW()
	`, profile.UserID, profile.Specialty, profile.Degree,
		profile.ExperienceYears, profile.FeesCents, profile.About, profile.Available)
	return err
}

// GetByUserID retrieves a doctor profile with the owning user
func (r *DoctorRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.DoctorProfile, error) {
	profile := &domain.DoctorProfile{}
	var user domain.PublicUser
	err := r.db.Pool.QueryRow(ctx, `
		SELECT dp.user_id, dp.specialty, dp.degree, dp.experience_years,
		       dp.fees_cents, dp.about, dp.available, dp.created_at, dp.updated_at,
		       u.id, u.name, u.role
		FROM doctor_profiles dp
		JOIN users u ON u.id = dp.user_id
		WHERE dp.user_id = $1
	`, userID).Scan(
		&profile.UserID, &profile.Specialty, &profile.Degree, &profile.ExperienceYears,
		&profile.FeesCents, &profile.About, &profile.Available,
		&profile.CreatedAt, &profile.UpdatedAt,
		&user.ID, &user.Name, &user.Role,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDoctorNotFound
	}
	if err != nil {
		return nil, err
	}
	profile.User = &user
	return profile, nil
}

// List returns doctor profiles, optionally filtered by specialty
func (r *DoctorRepository) List(ctx context.Context, specialty string, limit int) ([]domain.DoctorProfile, error) {
	query := `
		SELECT dp.user_id, dp.specialty, dp.degree, dp.experience_years,
		       dp.fees_cents, dp.about, dp.available, dp.created_at, dp.updated_at,
		       u.id, u.name, u.role
		FROM doctor_profiles dp
		JOIN users u ON u.id = dp.user_id
	`
	args := []interface{}{}
	if specialty != "" {
		query += ` WHERE dp.specialty = $1 ORDER BY u.name LIMIT $2`
		args = append(args, specialty, limit)
	} else {
		query += ` ORDER BY u.name LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []domain.DoctorProfile
	for rows.Next() {
		var p domain.DoctorProfile
		var user domain.PublicUser
		err := rows.Scan(
			&p.UserID, &p.Specialty, &p.Degree, &p.ExperienceYears,
			&p.FeesCents, &p.About, &p.Available, &p.CreatedAt, &p.UpdatedAt,
			&user.ID, &user.Name, &user.Role,
		)
		if err != nil {
			return nil, err
		}
		p.User = &user
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// SetAvailability toggles whether a doctor accepts new appointments
func (r *DoctorRepository) SetAvailability(ctx context.Context, userID uuid.UUID, available bool) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE doctor_profiles SET available = $2, updated_at = NOW() WHERE user_id = $1
	`, userID, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDoctorNotFound
	}
	return nil
}
