package notification

import (
	"time"

	"github.com/google/uuid"
)

const (
	CategoryAppointment = "appointment"
	CategorySystem      = "system"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Notification is one in-app inbox row.
type Notification struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	Category      string     `json:"category"`
	Priority      string     `json:"priority"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Read          bool       `json:"read"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
