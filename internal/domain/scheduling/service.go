package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medcare/medcare/internal/domain/notification"
	"github.com/medcare/medcare/internal/platform/auth"
)

const (
	DefaultDuration = 30
	MinDuration     = 15
	MaxDuration     = 120
	maxReasonLen    = 500
	maxTextLen      = 2000
)

// Person is the slice of an account the scheduler needs.
type Person struct {
	ID   uuid.UUID
	Name string
	Role string
}

// Directory resolves users. Lookup returns (nil, nil) for an unknown id.
type Directory interface {
	Lookup(ctx context.Context, id uuid.UUID) (*Person, error)
}

// Notifier delivers a templated in-app notification.
type Notifier interface {
	Send(ctx context.Context, templateID string, userID uuid.UUID, appointmentID *uuid.UUID, data map[string]string) error
}

type Service struct {
	appointments AppointmentRepository
	directory    Directory
	notifier     Notifier
	grid         SlotGrid
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(appts AppointmentRepository, dir Directory, notifier Notifier, grid SlotGrid, logger zerolog.Logger) *Service {
	return &Service{
		appointments: appts,
		directory:    dir,
		notifier:     notifier,
		grid:         grid,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Service) today() Date { return DateOf(s.now()) }

// -- Conflict checking and availability --

// CheckConflict reports whether an active appointment already holds the
// doctor's slot.
func (s *Service) CheckConflict(ctx context.Context, doctorID uuid.UUID, date Date, clock string) (bool, error) {
	if date.IsZero() {
		return false, invalid("date", "is required")
	}
	norm, err := NormalizeClock(clock)
	if err != nil {
		return false, invalid("time", err.Error())
	}
	return s.appointments.SlotHeld(ctx, doctorID, date, norm, uuid.Nil)
}

// Availability lists the doctor's free slots on date in ascending order.
func (s *Service) Availability(ctx context.Context, doctorID uuid.UUID, date Date) ([]string, error) {
	if date.IsZero() {
		return nil, invalid("date", "is required")
	}
	if _, err := s.doctor(ctx, doctorID); err != nil {
		return nil, err
	}
	booked, err := s.appointments.BookedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	return s.grid.Free(booked), nil
}

func (s *Service) doctor(ctx context.Context, id uuid.UUID) (*Person, error) {
	p, err := s.directory.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.Role != auth.RoleDoctor {
		return nil, ErrDoctorNotFound
	}
	return p, nil
}

func (s *Service) patient(ctx context.Context, id uuid.UUID) (*Person, error) {
	p, err := s.directory.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.Role != auth.RolePatient {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

// -- Validation --

func checkText(v *ValidationError, field string, val *string, max int) {
	if val != nil && len(*val) > max {
		v.add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// validateSlot normalizes a.Time and checks the slot fields of a.
func (s *Service) validateSlot(v *ValidationError, a *Appointment) {
	switch {
	case a.Date.IsZero():
		v.add("date", "is required")
	case a.Date.Before(s.today()):
		v.add("date", "must not be in the past")
	}

	if a.Time == "" {
		v.add("time", "is required")
	} else if norm, err := NormalizeClock(a.Time); err != nil {
		v.add("time", err.Error())
	} else if !s.grid.Contains(norm) {
		v.add("time", fmt.Sprintf("must be a slot between %s and %s every %d minutes",
			FormatClock(s.grid.Open), FormatClock(s.grid.Close), s.grid.Step))
	} else {
		a.Time = norm
	}

	if a.DurationMinutes == 0 {
		a.DurationMinutes = DefaultDuration
	}
	if a.DurationMinutes < MinDuration || a.DurationMinutes > MaxDuration {
		v.add("duration_minutes", fmt.Sprintf("must be between %d and %d", MinDuration, MaxDuration))
	}
}

// -- Booking --

// BookAppointment validates, authorizes, checks the slot and inserts a as
// pending. The insert itself is atomic, so a booking that loses a race after
// passing the check still fails with ErrSlotTaken.
func (s *Service) BookAppointment(ctx context.Context, actor auth.Actor, a *Appointment) error {
	if actor.IsPatient() && a.PatientID == uuid.Nil {
		a.PatientID = actor.ID
	}

	v := &ValidationError{}
	if a.DoctorID == uuid.Nil {
		v.add("doctor_id", "is required")
	}
	if a.PatientID == uuid.Nil {
		v.add("patient_id", "is required")
	}
	s.validateSlot(v, a)
	checkText(v, "reason", a.Reason, maxReasonLen)
	if err := v.orNil(); err != nil {
		return err
	}

	switch {
	case actor.IsAdmin():
	case actor.IsPatient() && a.PatientID == actor.ID:
	default:
		return fmt.Errorf("%w: only the patient or an admin may book", ErrForbidden)
	}

	doc, err := s.doctor(ctx, a.DoctorID)
	if err != nil {
		return err
	}
	pat, err := s.patient(ctx, a.PatientID)
	if err != nil {
		return err
	}

	held, err := s.appointments.SlotHeld(ctx, a.DoctorID, a.Date, a.Time, uuid.Nil)
	if err != nil {
		return err
	}
	if held {
		return ErrSlotTaken
	}

	a.Status = StatusPending
	a.CreatedBy = actor.ID
	a.Diagnosis, a.Notes, a.CancellationReason = nil, nil, nil
	if err := s.appointments.Create(ctx, a); err != nil {
		return err
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Str("date", a.Date.String()).
		Str("time", a.Time).
		Msg("appointment booked")

	s.notify(ctx, notification.TemplateBooked, a, doc.ID, map[string]string{
		"patient": pat.Name, "doctor": doc.Name,
	})
	return nil
}

// -- Reads --

func canView(actor auth.Actor, a *Appointment) bool {
	switch {
	case actor.IsAdmin():
		return true
	case actor.IsPatient():
		return a.PatientID == actor.ID
	case actor.IsDoctor():
		return a.DoctorID == actor.ID
	}
	return false
}

func (s *Service) GetAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, a) {
		return nil, ErrForbidden
	}
	return a, nil
}

// ListAppointments scopes the filter to the caller: patients and doctors only
// ever see their own appointments.
func (s *Service) ListAppointments(ctx context.Context, actor auth.Actor, f Filter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !ValidStatus(f.Status) {
		return nil, 0, invalid("status", "unknown status "+f.Status)
	}
	switch {
	case actor.IsAdmin():
	case actor.IsPatient():
		f.PatientID = actor.ID
	case actor.IsDoctor():
		f.DoctorID = actor.ID
	default:
		return nil, 0, ErrForbidden
	}
	return s.appointments.List(ctx, f, limit, offset)
}

// -- Updates --

// UpdateAppointment applies a patch. Patient owners may reschedule or change
// the reason while the appointment is pending. The assigned doctor may set
// status, diagnosis and notes. Admins may do both.
func (s *Service) UpdateAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID, p Patch) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, a) {
		return nil, ErrForbidden
	}

	switch {
	case actor.IsPatient():
		if p.Status != nil || p.clinical() {
			return nil, fmt.Errorf("%w: patients may not change status, diagnosis or notes", ErrForbidden)
		}
	case actor.IsDoctor():
		if p.reschedules() || p.Reason != nil {
			return nil, fmt.Errorf("%w: doctors may not reschedule appointments", ErrForbidden)
		}
	}

	if p.Status != nil && *p.Status != a.Status {
		if p.reschedules() || p.Reason != nil {
			return nil, invalid("status", "cannot be changed together with date, time, duration or reason")
		}
		// Clinical fields ride along with the transition.
		if p.Diagnosis != nil {
			a.Diagnosis = p.Diagnosis
		}
		if p.Notes != nil {
			a.Notes = p.Notes
		}
		return s.transition(ctx, actor, a, *p.Status, nil)
	}

	prevStatus := a.Status
	v := &ValidationError{}
	if p.reschedules() || p.Reason != nil {
		if a.Status != StatusPending {
			return nil, invalid("status", "only pending appointments can be rescheduled")
		}
		if p.Date != nil {
			a.Date = *p.Date
		}
		if p.Time != nil {
			a.Time = *p.Time
		}
		if p.DurationMinutes != nil {
			a.DurationMinutes = *p.DurationMinutes
			if a.DurationMinutes == 0 {
				v.add("duration_minutes", fmt.Sprintf("must be between %d and %d", MinDuration, MaxDuration))
			}
		}
		if p.Reason != nil {
			a.Reason = p.Reason
		}
		if p.reschedules() {
			s.validateSlot(v, a)
		}
		checkText(v, "reason", a.Reason, maxReasonLen)
	}
	if p.Diagnosis != nil {
		a.Diagnosis = p.Diagnosis
	}
	if p.Notes != nil {
		a.Notes = p.Notes
	}
	checkText(v, "diagnosis", a.Diagnosis, maxTextLen)
	checkText(v, "notes", a.Notes, maxTextLen)
	if err := v.orNil(); err != nil {
		return nil, err
	}

	if p.Date != nil || p.Time != nil {
		held, err := s.appointments.SlotHeld(ctx, a.DoctorID, a.Date, a.Time, a.ID)
		if err != nil {
			return nil, err
		}
		if held {
			return nil, ErrSlotTaken
		}
	}

	if err := s.appointments.Update(ctx, a, prevStatus); err != nil {
		return nil, err
	}

	if recipient := counterParty(actor, a); recipient != uuid.Nil {
		s.notify(ctx, notification.TemplateUpdated, a, recipient, map[string]string{"actor": s.displayName(ctx, actor)})
	}
	return a, nil
}

// UpdateStatus moves the appointment through its lifecycle and notifies the
// counter-party. Notification failures are logged; the change stands.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, status string, reason *string) (*Appointment, error) {
	status = strings.TrimSpace(status)
	if !ValidStatus(status) {
		return nil, invalid("status", fmt.Sprintf("must be one of %s, %s, %s, %s, %s",
			StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow))
	}
	v := &ValidationError{}
	checkText(v, "reason", reason, maxReasonLen)
	if err := v.orNil(); err != nil {
		return nil, err
	}

	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, a) {
		return nil, ErrForbidden
	}
	return s.transition(ctx, actor, a, status, reason)
}

// CancelAppointment is UpdateStatus to cancelled. The record is kept.
func (s *Service) CancelAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID, reason *string) (*Appointment, error) {
	return s.UpdateStatus(ctx, actor, id, StatusCancelled, reason)
}

func (s *Service) transition(ctx context.Context, actor auth.Actor, a *Appointment, to string, reason *string) (*Appointment, error) {
	if actor.IsPatient() && to != StatusCancelled {
		return nil, fmt.Errorf("%w: patients may only cancel", ErrForbidden)
	}
	from := a.Status
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	a.Status = to
	if to == StatusCancelled {
		a.CancellationReason = reason
	}
	if err := s.appointments.Update(ctx, a, from); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("from", from).
		Str("to", to).
		Str("actor_id", actor.ID.String()).
		Msg("appointment status changed")

	data := map[string]string{"actor": s.displayName(ctx, actor)}
	if reason != nil && *reason != "" {
		data["reason"] = "Reason: " + *reason
	}
	for _, recipient := range statusRecipients(actor, a) {
		s.notify(ctx, templateFor(to), a, recipient, data)
	}
	return a, nil
}

func templateFor(status string) string {
	switch status {
	case StatusConfirmed:
		return notification.TemplateConfirmed
	case StatusCancelled:
		return notification.TemplateCancelled
	case StatusCompleted:
		return notification.TemplateCompleted
	case StatusNoShow:
		return notification.TemplateNoShow
	}
	return notification.TemplateUpdated
}

// counterParty is the other side of the appointment from the actor. Admin
// changes are reported to the patient.
func counterParty(actor auth.Actor, a *Appointment) uuid.UUID {
	switch {
	case actor.ID == a.PatientID:
		return a.DoctorID
	case actor.ID == a.DoctorID:
		return a.PatientID
	case actor.IsAdmin():
		return a.PatientID
	}
	return uuid.Nil
}

// statusRecipients extends counterParty: an admin cancellation also reaches
// the doctor, whose slot was just freed.
func statusRecipients(actor auth.Actor, a *Appointment) []uuid.UUID {
	out := []uuid.UUID{counterParty(actor, a)}
	if actor.IsAdmin() && a.Status == StatusCancelled && actor.ID != a.DoctorID {
		out = append(out, a.DoctorID)
	}
	return out
}

func (s *Service) displayName(ctx context.Context, actor auth.Actor) string {
	if p, err := s.directory.Lookup(ctx, actor.ID); err == nil && p != nil && p.Name != "" {
		return p.Name
	}
	switch {
	case actor.IsAdmin():
		return "an administrator"
	case actor.IsDoctor():
		return "your doctor"
	}
	return "the patient"
}

// notify is best effort: a failure is logged and never returned.
func (s *Service) notify(ctx context.Context, templateID string, a *Appointment, recipient uuid.UUID, extra map[string]string) {
	if s.notifier == nil || recipient == uuid.Nil {
		return
	}
	data := map[string]string{"date": a.Date.String(), "time": a.Time, "reason": ""}
	if _, ok := extra["doctor"]; !ok {
		if p, err := s.directory.Lookup(ctx, a.DoctorID); err == nil && p != nil {
			data["doctor"] = p.Name
		}
	}
	for k, v := range extra {
		data[k] = v
	}

	id := a.ID
	if err := s.notifier.Send(ctx, templateID, recipient, &id, data); err != nil {
		s.logger.Warn().Err(err).
			Str("appointment_id", a.ID.String()).
			Str("recipient_id", recipient.String()).
			Str("template", templateID).
			Msg("notification failed")
	}
}
