package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

// StorePort defines the persistence surface the service depends on.
type StorePort interface {
	LoadSnapshot(ctx context.Context, orgID uuid.UUID) (*Snapshot, error)
	GetEntry(ctx context.Context, entityType EntityType, entityID uuid.UUID, role authz.RoleID) (MatrixEntry, error)
	InsertEntry(ctx context.Context, orgID uuid.UUID, e MatrixEntry) (MatrixEntry, error)
	UpdateEntry(ctx context.Context, e MatrixEntry, expectedVersion int64) (MatrixEntry, error)
	InsertDepartment(ctx context.Context, d Department) error
	DeleteDepartment(ctx context.Context, id uuid.UUID, parent *uuid.UUID) error
}

// Invalidator drops the cached snapshot of an organization. The matrix
// write path calls it synchronously before returning so a writer always
// reads its own write.
type Invalidator interface {
	Invalidate(ctx context.Context, orgID uuid.UUID) error
}

// Service owns hierarchy mutations: department lifecycle and permission
// matrix writes.
type Service struct {
	store       StorePort
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService constructs a Service.
func NewService(store StorePort, invalidator Invalidator, logger *slog.Logger) *Service {
	return &Service{store: store, invalidator: invalidator, logger: logger}
}

// CreateDepartment validates the node against the current snapshot and
// persists it. Cycles and chains beyond MaxDepartmentDepth are rejected
// here so that decisions never have to detect them.
func (s *Service) CreateDepartment(ctx context.Context, d Department) (Department, error) {
	if d.Name == "" {
		return Department{}, fmt.Errorf("hierarchy: %w: department name required", authz.ErrValidation)
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now()

	snap, err := s.store.LoadSnapshot(ctx, d.OrganizationID)
	if err != nil {
		return Department{}, err
	}
	if err := validateParentChain(snap, d); err != nil {
		return Department{}, err
	}
	if err := s.store.InsertDepartment(ctx, d); err != nil {
		return Department{}, err
	}
	s.invalidate(ctx, d.OrganizationID)
	return d, nil
}

// DeleteDepartment removes a node, re-parenting its children and teams
// to the node's own parent.
func (s *Service) DeleteDepartment(ctx context.Context, orgID, id uuid.UUID) error {
	snap, err := s.store.LoadSnapshot(ctx, orgID)
	if err != nil {
		return err
	}
	node, ok := snap.Departments[id]
	if !ok {
		return fmt.Errorf("hierarchy: %w: department %s", authz.ErrNotFound, id)
	}
	if err := s.store.DeleteDepartment(ctx, id, node.ParentDepartmentID); err != nil {
		return err
	}
	s.invalidate(ctx, orgID)
	return nil
}

// PutEntry writes a matrix row. Version semantics follow optimistic
// locking: expectedVersion 0 inserts a new row, anything else is a
// compare-and-swap against the version the writer read. The owning
// organization's snapshot is invalidated before the call returns.
func (s *Service) PutEntry(ctx context.Context, orgID uuid.UUID, e MatrixEntry, expectedVersion int64) (MatrixEntry, error) {
	if err := validateEntry(e); err != nil {
		return MatrixEntry{}, err
	}
	snap, err := s.store.LoadSnapshot(ctx, orgID)
	if err != nil {
		return MatrixEntry{}, err
	}
	if err := entityBelongsToOrg(snap, e.EntityType, e.EntityID); err != nil {
		return MatrixEntry{}, err
	}

	var written MatrixEntry
	if expectedVersion == 0 {
		written, err = s.store.InsertEntry(ctx, orgID, e)
	} else {
		written, err = s.store.UpdateEntry(ctx, e, expectedVersion)
	}
	if err != nil {
		return MatrixEntry{}, err
	}
	s.invalidate(ctx, orgID)
	return written, nil
}

func (s *Service) invalidate(ctx context.Context, orgID uuid.UUID) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, orgID); err != nil && s.logger != nil {
		s.logger.Error("invalidate hierarchy snapshot",
			slog.String("organization_id", orgID.String()), slog.Any("error", err))
	}
}

func validateEntry(e MatrixEntry) error {
	switch e.EntityType {
	case EntityOrganization, EntityDepartment, EntityTeam:
	default:
		return fmt.Errorf("hierarchy: %w: unknown entity type %q", authz.ErrValidation, e.EntityType)
	}
	if e.EntityID == uuid.Nil {
		return fmt.Errorf("hierarchy: %w: entity id required", authz.ErrValidation)
	}
	if e.Role == "" {
		return fmt.Errorf("hierarchy: %w: role required", authz.ErrValidation)
	}
	for key := range e.Permissions {
		if !key.Resource.Valid() || !key.Action.Valid() {
			return fmt.Errorf("hierarchy: %w: unknown permission key (%s, %s)", authz.ErrValidation, key.Resource, key.Action)
		}
	}
	return nil
}

func entityBelongsToOrg(snap *Snapshot, t EntityType, id uuid.UUID) error {
	switch t {
	case EntityOrganization:
		if snap.Organization.ID != id {
			return fmt.Errorf("hierarchy: %w: organization %s", authz.ErrNotFound, id)
		}
	case EntityDepartment:
		if _, ok := snap.Departments[id]; !ok {
			return fmt.Errorf("hierarchy: %w: department %s", authz.ErrNotFound, id)
		}
	case EntityTeam:
		if _, ok := snap.Teams[id]; !ok {
			return fmt.Errorf("hierarchy: %w: team %s", authz.ErrNotFound, id)
		}
	}
	return nil
}

// validateParentChain rejects dangling parents, cross-organization
// parents, cycles and over-deep chains before the node is persisted.
func validateParentChain(snap *Snapshot, d Department) error {
	seen := map[uuid.UUID]struct{}{d.ID: {}}
	cur := d.ParentDepartmentID
	depth := 1
	for cur != nil {
		if depth >= MaxDepartmentDepth {
			return fmt.Errorf("hierarchy: %w: department chain exceeds depth %d", authz.ErrValidation, MaxDepartmentDepth)
		}
		if _, ok := seen[*cur]; ok {
			return fmt.Errorf("hierarchy: %w: department cycle through %s", authz.ErrValidation, *cur)
		}
		parent, ok := snap.Departments[*cur]
		if !ok {
			return fmt.Errorf("hierarchy: %w: parent department %s", authz.ErrNotFound, *cur)
		}
		if parent.OrganizationID != d.OrganizationID {
			return fmt.Errorf("hierarchy: %w: parent department belongs to another organization", authz.ErrValidation)
		}
		seen[*cur] = struct{}{}
		cur = parent.ParentDepartmentID
		depth++
	}
	return nil
}
