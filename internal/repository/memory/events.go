package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/patientflow/internal/model"
)

type auditRepository struct{ s *Store }

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	c := *log
	r.s.auditLogs = append(r.s.auditLogs, &c)
	return nil
}

func (r *auditRepository) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*model.AuditLog
	for _, l := range r.s.auditLogs {
		if filter.HospitalID != uuid.Nil && l.HospitalID != filter.HospitalID {
			continue
		}
		if filter.UserID != uuid.Nil && l.UserID != filter.UserID {
			continue
		}
		if filter.EntityType != "" && l.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != uuid.Nil && l.EntityID != filter.EntityID {
			continue
		}
		if filter.Action != "" && l.Action != filter.Action {
			continue
		}
		if filter.StartDate != nil && l.CreatedAt.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && l.CreatedAt.After(*filter.EndDate) {
			continue
		}
		c := *l
		matched = append(matched, &c)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	page := filter.Pagination.Normalize()
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	kept := r.s.auditLogs[:0]
	var removed int64
	for _, l := range r.s.auditLogs {
		if l.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	r.s.auditLogs = kept
	return removed, nil
}

type outboxRepository struct{ s *Store }

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = model.OutboxStatusPending
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	c := *event
	r.s.outbox[c.ID] = &c
	return nil
}

// ProcessPending marks the selected events in flight so concurrent callers skip
// them, then runs fn without holding the store lock.
func (r *outboxRepository) ProcessPending(ctx context.Context, limit int, retryDelay time.Duration, fn func(*model.OutboxEvent) error) (int, int, error) {
	now := time.Now()

	r.s.mu.Lock()
	var due []*model.OutboxEvent
	for id, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessed || r.s.inflight[id] {
			continue
		}
		if e.RetryAt != nil && e.RetryAt.After(now) {
			continue
		}
		c := *e
		due = append(due, &c)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, e := range due {
		r.s.inflight[e.ID] = true
	}
	r.s.mu.Unlock()

	var processed, failed int
	for _, e := range due {
		if ctx.Err() != nil {
			r.release(due)
			return processed, failed, ctx.Err()
		}
		fnErr := fn(e)

		r.s.mu.Lock()
		stored := r.s.outbox[e.ID]
		delete(r.s.inflight, e.ID)
		if stored != nil {
			t := time.Now()
			stored.UpdatedAt = t
			if fnErr != nil {
				msg := fnErr.Error()
				retryAt := t.Add(retryDelay)
				stored.Status = model.OutboxStatusFailed
				stored.ErrorMessage = &msg
				stored.RetryCount++
				stored.RetryAt = &retryAt
				failed++
			} else {
				stored.Status = model.OutboxStatusProcessed
				stored.ProcessedAt = &t
				stored.ErrorMessage = nil
				processed++
			}
		}
		r.s.mu.Unlock()
	}
	return processed, failed, nil
}

func (r *outboxRepository) release(events []*model.OutboxEvent) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range events {
		delete(r.s.inflight, e.ID)
	}
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var removed int64
	for id, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.s.outbox, id)
			removed++
		}
	}
	return removed, nil
}

// Pending reports the events not yet processed, oldest first.
func (s *Store) Pending() []*model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*model.OutboxEvent
	for _, e := range s.outbox {
		if e.Status != model.OutboxStatusProcessed {
			c := *e
			pending = append(pending, &c)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending
}
