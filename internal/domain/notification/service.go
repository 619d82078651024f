package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medcare/medcare/internal/platform/websocket"
)

// EventCreated is the websocket event type pushed for new notifications.
const EventCreated = "notification.created"

// Service is the in-app notification sink. Rows are the source of truth;
// the real-time push is best effort.
type Service struct {
	repo      Repository
	templates *TemplateEngine
	publisher websocket.EventPublisher
	logger    zerolog.Logger
}

// NewService builds the sink. publisher may be nil, in which case nothing is
// pushed in real time.
func NewService(repo Repository, templates *TemplateEngine, publisher websocket.EventPublisher, logger zerolog.Logger) *Service {
	if templates == nil {
		templates = NewTemplateEngine()
	}
	return &Service{repo: repo, templates: templates, publisher: publisher, logger: logger}
}

// Notify stores n and pushes it to the recipient's room.
func (s *Service) Notify(ctx context.Context, n *Notification) error {
	if n.UserID == uuid.Nil {
		return fmt.Errorf("notification recipient is required")
	}
	if n.Category == "" {
		n.Category = CategorySystem
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	s.push(ctx, n)
	return nil
}

func (s *Service) push(ctx context.Context, n *Notification) {
	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal notification for push")
		return
	}
	event := websocket.Event{Type: EventCreated, Room: websocket.UserRoom(n.UserID), Data: data}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("notification_id", n.ID.String()).Msg("real-time push failed")
	}
}

// Send renders templateID with data and notifies userID.
func (s *Service) Send(ctx context.Context, templateID string, userID uuid.UUID, appointmentID *uuid.UUID, data map[string]string) error {
	t, err := s.templates.Render(templateID, data)
	if err != nil {
		return err
	}
	return s.Notify(ctx, &Notification{
		UserID:        userID,
		Category:      t.Category,
		Priority:      t.Priority,
		Title:         t.Title,
		Message:       t.Body,
		AppointmentID: appointmentID,
	})
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	return s.repo.ListForUser(ctx, userID, unreadOnly, limit, offset)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) (*Notification, error) {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}
