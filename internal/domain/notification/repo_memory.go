package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRepo struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID][]*Notification
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byUser: make(map[uuid.UUID][]*Notification)}
}

func (r *MemoryRepo) Create(_ context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = uuid.New()
	n.CreatedAt = time.Now().UTC()
	cp := *n
	r.byUser[n.UserID] = append(r.byUser[n.UserID], &cp)
	return nil
}

func (r *MemoryRepo) ListForUser(_ context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	r.mu.RLock()
	rows := r.byUser[userID]
	var all []*Notification
	// Rows are appended in creation order; walk backwards for newest first.
	for i := len(rows) - 1; i >= 0; i-- {
		if unreadOnly && rows[i].Read {
			continue
		}
		cp := *rows[i]
		all = append(all, &cp)
	}
	r.mu.RUnlock()

	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *MemoryRepo) MarkRead(_ context.Context, userID, id uuid.UUID) (*Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.byUser[userID] {
		if n.ID == id {
			if !n.Read {
				now := time.Now().UTC()
				n.Read = true
				n.ReadAt = &now
			}
			cp := *n
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepo) MarkAllRead(_ context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	count := 0
	for _, n := range r.byUser[userID] {
		if !n.Read {
			n.Read = true
			n.ReadAt = &now
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepo) UnreadCount(_ context.Context, userID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, n := range r.byUser[userID] {
		if !n.Read {
			count++
		}
	}
	return count, nil
}
