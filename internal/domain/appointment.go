package domain

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusBooked    AppointmentStatus = "booked"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

// Appointment links exactly one patient and one doctor. Its ID doubles as the
// chat room identifier for that pair.
type Appointment struct {
	ID          uuid.UUID         `json:"id"`
	PatientID   uuid.UUID         `json:"patient_id"`
	DoctorID    uuid.UUID         `json:"doctor_id"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	Status      AppointmentStatus `json:"status"`
	FeesCents   int64             `json:"fees_cents"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	// Populated on fetch
	Patient *PublicUser `json:"patient,omitempty"`
	Doctor  *PublicUser `json:"doctor,omitempty"`
}

// IsParticipant reports whether userID is the patient or the doctor
func (a *Appointment) IsParticipant(userID uuid.UUID) bool {
	return a.PatientID == userID || a.DoctorID == userID
}

// DoctorProfile holds the bookable details of a doctor account
type DoctorProfile struct {
	UserID          uuid.UUID `json:"user_id"`
	Specialty       string    `json:"specialty"`
	Degree          string    `json:"degree"`
	ExperienceYears int       `json:"experience_years"`
	FeesCents       int64     `json:"fees_cents"`
	About           string    `json:"about,omitempty"`
	Available       bool      `json:"available"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Populated on fetch
	User *PublicUser `json:"user,omitempty"`
}
