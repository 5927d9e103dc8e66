package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

type entryKey struct {
	Type EntityType
	ID   uuid.UUID
	Role authz.RoleID
}

type mockStore struct {
	org         Organization
	departments map[uuid.UUID]Department
	teams       map[uuid.UUID]Team
	entries     map[entryKey]MatrixEntry

	snapshotErr error
	insertCalls int
	deleteCalls int
}

func newMockStore() *mockStore {
	return &mockStore{
		org:         Organization{ID: orgID, Name: "Acme"},
		departments: make(map[uuid.UUID]Department),
		teams:       make(map[uuid.UUID]Team),
		entries:     make(map[entryKey]MatrixEntry),
	}
}

func (m *mockStore) LoadSnapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	if id != m.org.ID {
		return nil, fmt.Errorf("hierarchy: %w: organization %s", authz.ErrNotFound, id)
	}
	var depts []Department
	for _, d := range m.departments {
		depts = append(depts, d)
	}
	var teams []Team
	for _, t := range m.teams {
		teams = append(teams, t)
	}
	var entries []MatrixEntry
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	return NewSnapshot(m.org, depts, teams, entries, time.Now()), nil
}

func (m *mockStore) GetEntry(ctx context.Context, t EntityType, id uuid.UUID, role authz.RoleID) (MatrixEntry, error) {
	e, ok := m.entries[entryKey{Type: t, ID: id, Role: role}]
	if !ok {
		return MatrixEntry{}, fmt.Errorf("hierarchy: %w: matrix entry", authz.ErrNotFound)
	}
	return e, nil
}

func (m *mockStore) InsertEntry(ctx context.Context, org uuid.UUID, e MatrixEntry) (MatrixEntry, error) {
	key := entryKey{Type: e.EntityType, ID: e.EntityID, Role: e.Role}
	if _, exists := m.entries[key]; exists {
		return MatrixEntry{}, fmt.Errorf("hierarchy: %w: matrix entry already exists", authz.ErrConflict)
	}
	e.Version = 1
	e.UpdatedAt = time.Now()
	m.entries[key] = e
	return e, nil
}

func (m *mockStore) UpdateEntry(ctx context.Context, e MatrixEntry, expectedVersion int64) (MatrixEntry, error) {
	key := entryKey{Type: e.EntityType, ID: e.EntityID, Role: e.Role}
	existing, ok := m.entries[key]
	if !ok || existing.Version != expectedVersion {
		return MatrixEntry{}, fmt.Errorf("hierarchy: %w: expected version %d", authz.ErrConflict, expectedVersion)
	}
	e.Version = expectedVersion + 1
	e.UpdatedAt = time.Now()
	m.entries[key] = e
	return e, nil
}

func (m *mockStore) InsertDepartment(ctx context.Context, d Department) error {
	m.insertCalls++
	m.departments[d.ID] = d
	return nil
}

func (m *mockStore) DeleteDepartment(ctx context.Context, id uuid.UUID, parent *uuid.UUID) error {
	m.deleteCalls++
	if _, ok := m.departments[id]; !ok {
		return fmt.Errorf("hierarchy: %w: department %s", authz.ErrNotFound, id)
	}
	for childID, child := range m.departments {
		if child.ParentDepartmentID != nil && *child.ParentDepartmentID == id {
			child.ParentDepartmentID = parent
			m.departments[childID] = child
		}
	}
	delete(m.departments, id)
	return nil
}

type recordingInvalidator struct {
	orgs []uuid.UUID
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, orgID uuid.UUID) error {
	r.orgs = append(r.orgs, orgID)
	return nil
}

func TestPutEntryInsertThenConflictOnStaleVersion(t *testing.T) {
	store := newMockStore()
	inv := &recordingInvalidator{}
	svc := NewService(store, inv, nil)

	entry := MatrixEntry{
		EntityType:         EntityOrganization,
		EntityID:           orgID,
		Role:               authz.RoleMember,
		AllowChildOverride: true,
		Permissions: map[authz.PermKey]Override{
			taskDelete(): {Allowed: false},
		},
	}

	written, err := svc.PutEntry(context.Background(), orgID, entry, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), written.Version)
	require.Len(t, inv.orgs, 1, "snapshot must be invalidated before the write returns")

	// First concurrent writer succeeds.
	_, err = svc.PutEntry(context.Background(), orgID, entry, 1)
	require.NoError(t, err)

	// Second writer with the same base version must conflict and the
	// first write must persist unchanged.
	_, err = svc.PutEntry(context.Background(), orgID, entry, 1)
	require.True(t, errors.Is(err, authz.ErrConflict))
	current, err := store.GetEntry(context.Background(), EntityOrganization, orgID, authz.RoleMember)
	require.NoError(t, err)
	require.Equal(t, int64(2), current.Version)
	require.Len(t, inv.orgs, 2, "failed writes must not invalidate")
}

func TestPutEntryRejectsDanglingEntity(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, &recordingInvalidator{}, nil)

	entry := MatrixEntry{
		EntityType: EntityTeam,
		EntityID:   uuid.New(),
		Role:       authz.RoleMember,
		Permissions: map[authz.PermKey]Override{
			taskDelete(): {Allowed: true},
		},
	}
	_, err := svc.PutEntry(context.Background(), orgID, entry, 0)
	require.True(t, errors.Is(err, authz.ErrNotFound))
}

func TestPutEntryRejectsUnknownPermissionKey(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, &recordingInvalidator{}, nil)

	entry := MatrixEntry{
		EntityType: EntityOrganization,
		EntityID:   orgID,
		Role:       authz.RoleMember,
		Permissions: map[authz.PermKey]Override{
			{Resource: "widget", Action: "frobnicate"}: {Allowed: true},
		},
	}
	_, err := svc.PutEntry(context.Background(), orgID, entry, 0)
	require.True(t, errors.Is(err, authz.ErrValidation))
}

func TestCreateDepartmentRejectsSelfParent(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, &recordingInvalidator{}, nil)

	id := uuid.New()
	_, err := svc.CreateDepartment(context.Background(), Department{
		ID:                 id,
		OrganizationID:     orgID,
		ParentDepartmentID: &id,
		Name:               "Ouroboros",
	})
	require.True(t, errors.Is(err, authz.ErrValidation))
	require.Zero(t, store.insertCalls)
}

func TestCreateDepartmentRejectsDanglingParent(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, &recordingInvalidator{}, nil)

	ghost := uuid.New()
	_, err := svc.CreateDepartment(context.Background(), Department{
		OrganizationID:     orgID,
		ParentDepartmentID: &ghost,
		Name:               "Orphan",
	})
	require.True(t, errors.Is(err, authz.ErrNotFound))
}

func TestCreateDepartmentRejectsOverDeepChain(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, &recordingInvalidator{}, nil)

	var parent *uuid.UUID
	for i := 0; i < MaxDepartmentDepth; i++ {
		id := uuid.New()
		store.departments[id] = Department{ID: id, OrganizationID: orgID, ParentDepartmentID: parent}
		p := id
		parent = &p
	}
	_, err := svc.CreateDepartment(context.Background(), Department{
		OrganizationID:     orgID,
		ParentDepartmentID: parent,
		Name:               "Too Deep",
	})
	require.True(t, errors.Is(err, authz.ErrValidation))
}

func TestDeleteDepartmentReparentsChildren(t *testing.T) {
	store := newMockStore()
	inv := &recordingInvalidator{}
	svc := NewService(store, inv, nil)

	root := uuid.New()
	mid := uuid.New()
	leaf := uuid.New()
	store.departments[root] = Department{ID: root, OrganizationID: orgID}
	store.departments[mid] = Department{ID: mid, OrganizationID: orgID, ParentDepartmentID: &root}
	store.departments[leaf] = Department{ID: leaf, OrganizationID: orgID, ParentDepartmentID: &mid}

	require.NoError(t, svc.DeleteDepartment(context.Background(), orgID, mid))

	got := store.departments[leaf]
	require.NotNil(t, got.ParentDepartmentID)
	require.Equal(t, root, *got.ParentDepartmentID, "children must be re-parented to the deleted node's parent")
	require.Len(t, inv.orgs, 1)
}
