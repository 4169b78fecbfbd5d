// Package view derives the presentation-facing read surface from the
// store: an ordered display list under the current filter, the level
// menu, and record counts. Derivation is pure and recomputed on every
// read, so it is always consistent with the store.
package view

import (
	"strings"
	"sync"

	"github.com/coffersTech/nanotail/internal/model"
	"github.com/coffersTech/nanotail/internal/query"
	"github.com/coffersTech/nanotail/internal/store"
)

// FilterAll selects every record regardless of level.
const FilterAll = "ALL"

// Snapshot is one consistent read of everything the presentation layer
// consumes.
type Snapshot struct {
	Status         string
	Records        []model.Record
	Levels         []string
	TotalCount     int
	DisplayedCount int
}

// View holds the current filter selection over a store.
type View struct {
	store *store.Store

	mu    sync.RWMutex
	level string
	query query.Node
}

func New(s *store.Store) *View {
	return &View{store: s, level: FilterAll}
}

// SetFilter selects a level token. Comparison is case-insensitive and
// folds the WARNING alias, so "warn" and "WARNING" select the same rows.
func (v *View) SetFilter(level string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if strings.TrimSpace(level) == "" {
		level = FilterAll
	}
	v.level = level
}

// Filter returns the currently selected level token.
func (v *View) Filter() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.level
}

// SetQuery narrows the display list with a search expression (see the
// query package). Empty disables it. A malformed expression is
// rejected and the previous query stays in effect.
func (v *View) SetQuery(q string) error {
	node, err := query.Parse(q)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.query = node
	return nil
}

// Clear empties the store. The filter selection is kept.
func (v *View) Clear() {
	v.store.Clear()
}

// Snapshot computes the display list and level menu for the current
// filter. The menu is derived from the whole store, not the filtered
// list, so levels stay selectable while filtered out.
func (v *View) Snapshot(status string) Snapshot {
	v.mu.RLock()
	level := v.level
	node := v.query
	v.mu.RUnlock()

	records := v.store.Snapshot()
	want := model.CanonicalLevel(level)

	snap := Snapshot{
		Status:     status,
		Levels:     levelMenu(records),
		TotalCount: len(records),
	}

	display := make([]model.Record, 0, len(records))
	for _, r := range records {
		if want != FilterAll && model.CanonicalLevel(r.Level) != want {
			continue
		}
		if !query.Match(node, r) {
			continue
		}
		display = append(display, r)
	}
	snap.Records = display
	snap.DisplayedCount = len(display)
	return snap
}

// levelMenu lists ALL followed by the distinct levels in first-seen
// store order.
func levelMenu(records []model.Record) []string {
	menu := []string{FilterAll}
	seen := map[string]bool{}
	for _, r := range records {
		lvl := model.CanonicalLevel(r.Level)
		if lvl == "" || seen[lvl] {
			continue
		}
		seen[lvl] = true
		menu = append(menu, lvl)
	}
	return menu
}
