package scheduling

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Appointment statuses. Pending and confirmed appointments hold their slot.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no-show"
)

// ActiveStatuses are the statuses that block a slot.
var ActiveStatuses = []string{StatusPending, StatusConfirmed}

func IsActive(status string) bool {
	return status == StatusPending || status == StatusConfirmed
}

var transitions = map[string]map[string]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
		StatusCompleted: true,
		StatusNoShow:    true,
	},
	StatusConfirmed: {
		StatusCancelled: true,
		StatusCompleted: true,
		StatusNoShow:    true,
	},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// Cancelled, completed and no-show are terminal.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Date is a calendar day with no time or zone. Two appointments are on the
// same day exactly when their Dates are equal.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// ParseDate accepts YYYY-MM-DD, or an RFC 3339 timestamp whose calendar day
// (in its own offset) is taken.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) Before(o Date) bool { return d.Time().Before(o.Time()) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`null`), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type Appointment struct {
	ID                 uuid.UUID `json:"id"`
	PatientID          uuid.UUID `json:"patient_id"`
	DoctorID           uuid.UUID `json:"doctor_id"`
	Date               Date      `json:"date"`
	Time               string    `json:"time"`
	DurationMinutes    int       `json:"duration_minutes"`
	Status             string    `json:"status"`
	Reason             *string   `json:"reason,omitempty"`
	Diagnosis          *string   `json:"diagnosis,omitempty"`
	Notes              *string   `json:"notes,omitempty"`
	CancellationReason *string   `json:"cancellation_reason,omitempty"`
	CreatedBy          uuid.UUID `json:"created_by"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Date            *Date   `json:"date,omitempty"`
	Time            *string `json:"time,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	Reason          *string `json:"reason,omitempty"`
	Status          *string `json:"status,omitempty"`
	Diagnosis       *string `json:"diagnosis,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

func (p Patch) reschedules() bool {
	return p.Date != nil || p.Time != nil || p.DurationMinutes != nil
}

func (p Patch) clinical() bool {
	return p.Diagnosis != nil || p.Notes != nil
}

// Filter narrows ListAppointments. Zero values mean "any".
type Filter struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    string
	Date      Date
}
