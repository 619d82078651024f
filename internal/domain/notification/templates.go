package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Template ids for appointment lifecycle events.
const (
	TemplateBooked    = "appointment-booked"
	TemplateConfirmed = "appointment-confirmed"
	TemplateCancelled = "appointment-cancelled"
	TemplateCompleted = "appointment-completed"
	TemplateNoShow    = "appointment-no-show"
	TemplateUpdated   = "appointment-updated"
)

// Template is an inbox message with {{key}} placeholders.
type Template struct {
	ID       string
	Category string
	Priority string
	Title    string
	Body     string
}

// TemplateEngine renders templates by id. It is safe for concurrent use.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range builtInTemplates {
		e.RegisterTemplate(t)
	}
	return e
}

var builtInTemplates = []Template{
	{
		ID: TemplateBooked, Category: CategoryAppointment, Priority: PriorityNormal,
		Title: "New appointment request",
		Body:  "{{patient}} requested an appointment on {{date}} at {{time}}.",
	},
	{
		ID: TemplateConfirmed, Category: CategoryAppointment, Priority: PriorityHigh,
		Title: "Appointment confirmed",
		Body:  "Your appointment with {{doctor}} on {{date}} at {{time}} is confirmed.",
	},
	{
		ID: TemplateCancelled, Category: CategoryAppointment, Priority: PriorityHigh,
		Title: "Appointment cancelled",
		Body:  "The appointment on {{date}} at {{time}} was cancelled by {{actor}}. {{reason}}",
	},
	{
		ID: TemplateCompleted, Category: CategoryAppointment, Priority: PriorityLow,
		Title: "Appointment completed",
		Body:  "Your appointment with {{doctor}} on {{date}} at {{time}} is marked completed.",
	},
	{
		ID: TemplateNoShow, Category: CategoryAppointment, Priority: PriorityNormal,
		Title: "Missed appointment",
		Body:  "You were marked as a no-show for the appointment on {{date}} at {{time}}.",
	},
	{
		ID: TemplateUpdated, Category: CategoryAppointment, Priority: PriorityNormal,
		Title: "Appointment updated",
		Body:  "{{actor}} updated the appointment on {{date}} at {{time}}.",
	},
}

func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := t
	e.templates[t.ID] = &cp
}

// Render substitutes data into the template. Unknown placeholders are left
// as-is; surrounding whitespace of the body is trimmed so an empty trailing
// field does not leave a dangling space.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (*Template, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("template %q not found", templateID)
	}

	out := *t
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		out.Title = strings.ReplaceAll(out.Title, placeholder, v)
		out.Body = strings.ReplaceAll(out.Body, placeholder, v)
	}
	out.Body = strings.TrimSpace(out.Body)
	return &out, nil
}
