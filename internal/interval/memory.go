package interval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemLedger is an in-memory Ledger used by unit tests and local tooling.
// It enforces the same open-row uniqueness and range validation as the
// PostgreSQL implementation, and WithinTx rolls state back on error.
type MemLedger struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	tables map[string][]*memRow
	seq    int
}

type memRow struct {
	id       uuid.UUID
	values   map[string]any
	openedAt time.Time
	closedAt time.Time
	seq      int
}

// NewMemLedger creates an empty in-memory ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{tables: map[string][]*memRow{}}
}

func (m *MemLedger) Open(_ context.Context, t Table, id uuid.UUID, fields []Field, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	values := make(map[string]any, len(fields))
	for _, f := range fields {
		values[f.Name] = f.Value
	}

	if len(t.UniqueOpenColumns) > 0 {
		for _, row := range m.tables[t.Name] {
			if !row.closedAt.IsZero() {
				continue
			}
			conflict := true
			for _, col := range t.UniqueOpenColumns {
				if row.values[col] != values[col] {
					conflict = false
					break
				}
			}
			if conflict {
				return fmt.Errorf("%s: %w", t.Name, ErrConflict)
			}
		}
	}

	m.seq++
	m.tables[t.Name] = append(m.tables[t.Name], &memRow{
		id:       id,
		values:   values,
		openedAt: at,
		seq:      m.seq,
	})
	return nil
}

func (m *MemLedger) CloseLatest(_ context.Context, t Table, match []Field, at time.Time) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *memRow
	for _, row := range m.tables[t.Name] {
		if !row.closedAt.IsZero() || !rowMatches(row, match) {
			continue
		}
		if latest == nil || row.openedAt.After(latest.openedAt) ||
			(row.openedAt.Equal(latest.openedAt) && row.seq > latest.seq) {
			latest = row
		}
	}
	if latest == nil {
		return uuid.Nil, false, nil
	}
	if at.Before(latest.openedAt) {
		return uuid.Nil, false, fmt.Errorf("%s: %w", t.Name, ErrInvalidRange)
	}
	latest.closedAt = at
	return latest.id, true, nil
}

func (m *MemLedger) CloseAll(_ context.Context, t Table, match []Field, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var closed int64
	for _, row := range m.tables[t.Name] {
		if !row.closedAt.IsZero() || !rowMatches(row, match) {
			continue
		}
		if row.openedAt.After(at) {
			continue
		}
		row.closedAt = at
		closed++
	}
	return closed, nil
}

func (m *MemLedger) Exists(_ context.Context, t Table, match []Field) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.tables[t.Name] {
		if rowMatches(row, match) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemLedger) OpenRows(_ context.Context, t Table, match []Field) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Row
	for _, row := range m.tables[t.Name] {
		if row.closedAt.IsZero() && rowMatches(row, match) {
			out = append(out, row.view())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemLedger) RowsBetween(_ context.Context, t Table, match []Field, from, to time.Time) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Row
	for _, row := range m.tables[t.Name] {
		if !rowMatches(row, match) {
			continue
		}
		if row.openedAt.After(to) {
			continue
		}
		if !row.closedAt.IsZero() && row.closedAt.Before(from) {
			continue
		}
		out = append(out, row.view())
	}
	sortOldestFirst(out)
	return out, nil
}

// WithinTx serializes transitions and restores the previous state when fn
// returns an error, mirroring a rolled-back transaction.
func (m *MemLedger) WithinTx(_ context.Context, fn func(Ledger) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snapshot := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

// Rows returns every row of the table, oldest first. Test helper.
func (m *MemLedger) Rows(t Table) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Row, 0, len(m.tables[t.Name]))
	for _, row := range m.tables[t.Name] {
		out = append(out, row.view())
	}
	sortOldestFirst(out)
	return out
}

func (m *MemLedger) snapshot() map[string][]*memRow {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := make(map[string][]*memRow, len(m.tables))
	for name, rows := range m.tables {
		copied := make([]*memRow, len(rows))
		for i, row := range rows {
			clone := *row
			clone.values = make(map[string]any, len(row.values))
			for k, v := range row.values {
				clone.values[k] = v
			}
			copied[i] = &clone
		}
		snap[name] = copied
	}
	return snap
}

func (m *MemLedger) restore(snap map[string][]*memRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = snap
}

func (r *memRow) view() Row {
	values := make(map[string]any, len(r.values))
	for k, v := range r.values {
		values[k] = v
	}
	return Row{
		ID:       r.id,
		Values:   values,
		OpenedAt: r.openedAt,
		ClosedAt: r.closedAt,
	}
}

func rowMatches(row *memRow, match []Field) bool {
	for _, f := range match {
		if row.values[f.Name] != f.Value {
			return false
		}
	}
	return true
}

func sortNewestFirst(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].OpenedAt.After(rows[j].OpenedAt)
	})
}

func sortOldestFirst(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].OpenedAt.Before(rows[j].OpenedAt)
	})
}
