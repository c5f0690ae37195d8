package memory

import (
	"context"
	"sort"

	dekDomain "github.com/allisson/keyvault/internal/dek/domain"
	apperrors "github.com/allisson/keyvault/internal/errors"
)

func (s *Store) SaveEncryptionConfig(_ context.Context, cfg *dekDomain.EncryptionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *cfg
	c.EncryptedFields = cloneStrings(cfg.EncryptedFields)
	s.configs[cfg.TableName] = c
	return nil
}

func (s *Store) GetEncryptionConfig(_ context.Context, tableName string) (*dekDomain.EncryptionConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.configs[tableName]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c.EncryptedFields = cloneStrings(c.EncryptedFields)
	return &c, nil
}

func (s *Store) ListEncryptionConfigs(_ context.Context) ([]*dekDomain.EncryptionConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*dekDomain.EncryptionConfig, 0, len(s.configs))
	for _, c := range s.configs {
		c.EncryptedFields = cloneStrings(c.EncryptedFields)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableName < out[j].TableName })
	return out, nil
}

func (s *Store) DeleteEncryptionConfig(_ context.Context, tableName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[tableName]; !ok {
		return apperrors.ErrNotFound
	}
	delete(s.configs, tableName)
	return nil
}

// PutRow inserts or replaces a row of an application table held by the field store.
func (s *Store) PutRow(table, id string, fields map[string]*string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.tables[table]
	if !ok {
		rows = make(map[string]map[string]*string)
		s.tables[table] = rows
	}
	row := make(map[string]*string, len(fields))
	for k, v := range fields {
		row[k] = copyStringPtr(v)
	}
	rows[id] = row
}

// Row returns a copy of one row, or nil.
func (s *Store) Row(table, id string) map[string]*string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.tables[table][id]
	if !ok {
		return nil
	}
	out := make(map[string]*string, len(row))
	for k, v := range row {
		out[k] = copyStringPtr(v)
	}
	return out
}

func copyStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func (s *Store) CountRows(_ context.Context, table string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tables[table]), nil
}

// ListRows pages rows ordered by id.
func (s *Store) ListRows(
	_ context.Context,
	table string,
	fields []string,
	offset, limit int,
) ([]*dekDomain.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.tables[table]
	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*dekDomain.Row, 0, len(ids))
	for _, id := range paginate(ids, offset, limit) {
		row := &dekDomain.Row{ID: id, Fields: make(map[string]*string, len(fields))}
		for _, f := range fields {
			row.Fields[f] = copyStringPtr(rows[id][f])
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Store) UpdateRowField(_ context.Context, table, id, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.tables[table][id]
	if !ok {
		return apperrors.ErrNotFound
	}
	row[field] = &value
	return nil
}
