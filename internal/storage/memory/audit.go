package memory

import (
	"context"
	"sort"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
)

func (s *Store) CreateAuditLog(_ context.Context, log *auditDomain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, *log)
	return nil
}

func auditMatches(log *auditDomain.AuditLog, f auditDomain.Filter) bool {
	if f.Action != "" && log.Action != f.Action {
		return false
	}
	if f.ResourceID != "" && log.ResourceID != f.ResourceID {
		return false
	}
	if f.Since != nil && log.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// ListAuditLogs returns matching entries newest first.
func (s *Store) ListAuditLogs(_ context.Context, f auditDomain.Filter) ([]*auditDomain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*auditDomain.AuditLog
	for i := range s.auditLogs {
		log := s.auditLogs[i]
		if auditMatches(&log, f) {
			out = append(out, &log)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Offset, f.Limit), nil
}

func (s *Store) CountAuditLogs(_ context.Context, f auditDomain.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for i := range s.auditLogs {
		if auditMatches(&s.auditLogs[i], f) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateSecurityEvent(_ context.Context, event *auditDomain.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *event)
	return nil
}

func eventMatches(e *auditDomain.SecurityEvent, f auditDomain.EventFilter) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	return f.Since.IsZero() || !e.Timestamp.Before(f.Since)
}

// ListSecurityEvents returns matching events newest first.
func (s *Store) ListSecurityEvents(_ context.Context, f auditDomain.EventFilter) ([]*auditDomain.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*auditDomain.SecurityEvent
	for i := range s.events {
		e := s.events[i]
		if eventMatches(&e, f) {
			out = append(out, &e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return paginate(out, 0, f.Limit), nil
}

func (s *Store) CountSecurityEvents(_ context.Context, f auditDomain.EventFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for i := range s.events {
		if eventMatches(&s.events[i], f) {
			n++
		}
	}
	return n, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
