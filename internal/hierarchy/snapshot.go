package hierarchy

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

type entityRef struct {
	Type EntityType
	ID   uuid.UUID
}

// Snapshot is an immutable, fully materialized view of one
// organization's hierarchy and permission matrix. Decisions read only
// from snapshots; refreshing is the cache's concern.
type Snapshot struct {
	Organization Organization
	Departments  map[uuid.UUID]Department
	Teams        map[uuid.UUID]Team
	FetchedAt    time.Time

	entries map[entityRef]map[authz.RoleID]MatrixEntry
}

// NewSnapshot assembles a snapshot from store rows.
func NewSnapshot(org Organization, departments []Department, teams []Team, entries []MatrixEntry, fetchedAt time.Time) *Snapshot {
	snap := &Snapshot{
		Organization: org,
		Departments:  make(map[uuid.UUID]Department, len(departments)),
		Teams:        make(map[uuid.UUID]Team, len(teams)),
		FetchedAt:    fetchedAt,
		entries:      make(map[entityRef]map[authz.RoleID]MatrixEntry),
	}
	for _, d := range departments {
		snap.Departments[d.ID] = d
	}
	for _, t := range teams {
		snap.Teams[t.ID] = t
	}
	for _, e := range entries {
		ref := entityRef{Type: e.EntityType, ID: e.EntityID}
		byRole, ok := snap.entries[ref]
		if !ok {
			byRole = make(map[authz.RoleID]MatrixEntry)
			snap.entries[ref] = byRole
		}
		byRole[e.Role] = e
	}
	return snap
}

// Entry returns the matrix row for (entity, role).
func (s *Snapshot) Entry(t EntityType, id uuid.UUID, role authz.RoleID) (MatrixEntry, bool) {
	byRole, ok := s.entries[entityRef{Type: t, ID: id}]
	if !ok {
		return MatrixEntry{}, false
	}
	e, ok := byRole[role]
	return e, ok
}

// EntriesAt returns every matrix row declared at an entity, across roles.
func (s *Snapshot) EntriesAt(t EntityType, id uuid.UUID) map[authz.RoleID]MatrixEntry {
	return s.entries[entityRef{Type: t, ID: id}]
}

// Age reports how stale the snapshot is.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}
