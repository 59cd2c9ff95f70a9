package domain

import "errors"

// Domain errors - use these for consistent error handling
var (
	// Auth errors
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrTokenInvalid       = errors.New("invalid token")

	// Doctor errors
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrDoctorUnavailable = errors.New("doctor is not accepting appointments")

	// Appointment errors
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrNotParticipant      = errors.New("user is not a participant of this appointment")
	ErrSlotTaken           = errors.New("doctor already has an appointment at this time")

	// Message errors
	ErrEmptyMessage = errors.New("message cannot be empty")
)
