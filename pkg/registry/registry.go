// Package registry deduplicates vulnerability records by identifier across
// every layer of one assessment run.
package registry

import (
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/northcutted/vuln-gate/pkg/types"
)

// Strategy decides which record survives when an identifier is registered twice.
type Strategy int

const (
	// FirstSeenWins keeps the first record registered for an identifier.
	FirstSeenWins Strategy = iota
	// MaxSeverityWins replaces the retained record when a later one is strictly
	// more severe. The identifier keeps its first-seen position.
	MaxSeverityWins
)

func (s Strategy) String() string {
	switch s {
	case MaxSeverityWins:
		return "max"
	default:
		return "first"
	}
}

// ParseStrategy parses the --dedup flag value.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "first":
		return FirstSeenWins, nil
	case "max":
		return MaxSeverityWins, nil
	default:
		return FirstSeenWins, fmt.Errorf("unknown dedup strategy %q (expected first or max)", name)
	}
}

// SeverityCount is one row of the severity summary.
type SeverityCount struct {
	Severity types.Severity
	Count    int
}

// Registry holds at most one record per identifier. Iteration order is the
// order in which identifiers were first registered. It is safe for concurrent
// use; all inserts go through one mutex.
type Registry struct {
	strategy Strategy

	mu         sync.RWMutex
	order      []string
	position   map[string]int
	records    map[string]types.Vulnerability
	partitions map[types.Severity][]string
}

// New returns an empty registry.
func New(strategy Strategy) *Registry {
	return &Registry{
		strategy:   strategy,
		position:   make(map[string]int),
		records:    make(map[string]types.Vulnerability),
		partitions: make(map[types.Severity][]string),
	}
}

// Register adds v and reports whether it is now the retained record for its
// identifier. Duplicates are expected traffic and are not an error.
func (r *Registry) Register(v types.Vulnerability) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[v.ID()]
	if !ok {
		r.position[v.ID()] = len(r.order)
		r.order = append(r.order, v.ID())
		r.records[v.ID()] = v
		r.partitions[v.Severity()] = append(r.partitions[v.Severity()], v.ID())
		return true
	}

	if r.strategy != MaxSeverityWins || v.Severity() <= existing.Severity() {
		return false
	}

	r.removeFromPartition(existing.Severity(), v.ID())
	r.insertIntoPartition(v.Severity(), v.ID())
	r.records[v.ID()] = v
	return true
}

func (r *Registry) removeFromPartition(sev types.Severity, id string) {
	ids := r.partitions[sev]
	for i, candidate := range ids {
		if candidate == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.partitions, sev)
		return
	}
	r.partitions[sev] = ids
}

// insertIntoPartition keeps the partition sorted by first-seen position.
func (r *Registry) insertIntoPartition(sev types.Severity, id string) {
	ids := r.partitions[sev]
	pos := r.position[id]
	i := sort.Search(len(ids), func(i int) bool { return r.position[ids[i]] > pos })
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	r.partitions[sev] = ids
}

// Len returns the number of retained records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Get returns the retained record for id.
func (r *Registry) Get(id string) (types.Vulnerability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.records[id]
	return v, ok
}

// All yields every retained record in first-seen order. Each range over the
// returned sequence starts again from the beginning and sees the registry as
// it was when that range started.
func (r *Registry) All() iter.Seq[types.Vulnerability] {
	return func(yield func(types.Vulnerability) bool) {
		for _, v := range r.snapshot(nil) {
			if !yield(v) {
				return
			}
		}
	}
}

// BySeverity yields the records at exactly sev, in first-seen order.
func (r *Registry) BySeverity(sev types.Severity) iter.Seq[types.Vulnerability] {
	return func(yield func(types.Vulnerability) bool) {
		for _, v := range r.snapshot(&sev) {
			if !yield(v) {
				return
			}
		}
	}
}

// snapshot copies the records of one partition, or of the whole registry when
// sev is nil.
func (r *Registry) snapshot(sev *types.Severity) []types.Vulnerability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.order
	if sev != nil {
		ids = r.partitions[*sev]
	}
	out := make([]types.Vulnerability, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.records[id])
	}
	return out
}

// CountBySeverity maps each severity to its number of retained records.
// Severities with no records are omitted.
func (r *Registry) CountBySeverity() map[types.Severity]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[types.Severity]int, len(r.partitions))
	for sev, ids := range r.partitions {
		counts[sev] = len(ids)
	}
	return counts
}

// Counts returns the non-zero severity counts ordered by the severity scale,
// lowest first.
func (r *Registry) Counts() []SeverityCount {
	counts := r.CountBySeverity()
	out := make([]SeverityCount, 0, len(counts))
	for _, sev := range types.Severities() {
		if n := counts[sev]; n > 0 {
			out = append(out, SeverityCount{Severity: sev, Count: n})
		}
	}
	return out
}

// HighestSeverityPresent returns the most severe retained record's severity,
// or types.SeverityNone when the registry is empty.
func (r *Registry) HighestSeverityPresent() types.Severity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	highest := types.SeverityNone
	for sev, ids := range r.partitions {
		if len(ids) > 0 && sev > highest {
			highest = sev
		}
	}
	return highest
}
