package hierarchy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskforge-hq/taskforge/internal/authz"
	"github.com/taskforge-hq/taskforge/internal/platform/db"
)

// Store provides PostgreSQL backed persistence for the hierarchy and the
// permission matrix.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const uniqueViolation = "23505"

// LoadSnapshot materializes the full hierarchy snapshot for one
// organization. A missing organization is ErrNotFound.
func (s *Store) LoadSnapshot(ctx context.Context, orgID uuid.UUID) (*Snapshot, error) {
	var org Organization
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM organizations WHERE id = $1`, orgID).
		Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("hierarchy: %w: organization %s", authz.ErrNotFound, orgID)
		}
		return nil, fmt.Errorf("hierarchy: load organization: %w", err)
	}

	departments, err := s.loadDepartments(ctx, orgID)
	if err != nil {
		return nil, err
	}
	teams, err := s.loadTeams(ctx, orgID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ListEntries(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(org, departments, teams, entries, time.Now()), nil
}

// ListOrganizationIDs returns every organization id, used by the
// snapshot warmup job.
func (s *Store) ListOrganizationIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM organizations`)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: list organizations: %w", err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("hierarchy: scan organization id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) loadDepartments(ctx context.Context, orgID uuid.UUID) ([]Department, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, organization_id, parent_department_id, name, compliance_settings, created_at
		 FROM departments WHERE organization_id = $1`, orgID)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: load departments: %w", err)
	}
	defer rows.Close()
	var out []Department
	for rows.Next() {
		var (
			d       Department
			rawComp []byte
		)
		if err := rows.Scan(&d.ID, &d.OrganizationID, &d.ParentDepartmentID, &d.Name, &rawComp, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("hierarchy: scan department: %w", err)
		}
		if len(rawComp) > 0 {
			if err := json.Unmarshal(rawComp, &d.ComplianceSettings); err != nil {
				return nil, fmt.Errorf("hierarchy: decode compliance settings: %w", err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) loadTeams(ctx context.Context, orgID uuid.UUID) ([]Team, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, organization_id, department_id, name, created_at
		 FROM teams WHERE organization_id = $1`, orgID)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: load teams: %w", err)
	}
	defer rows.Close()
	var out []Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.DepartmentID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("hierarchy: scan team: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListEntries returns every matrix row belonging to the organization,
// including rows declared on its departments and teams.
func (s *Store) ListEntries(ctx context.Context, orgID uuid.UUID) ([]MatrixEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entity_type, entity_id, role, permissions, version, allow_child_override, updated_at
		 FROM permission_matrix WHERE organization_id = $1`, orgID)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: list matrix entries: %w", err)
	}
	defer rows.Close()
	var out []MatrixEntry
	for rows.Next() {
		var (
			e        MatrixEntry
			rawPerms []byte
		)
		if err := rows.Scan(&e.EntityType, &e.EntityID, &e.Role, &rawPerms, &e.Version, &e.AllowChildOverride, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("hierarchy: scan matrix entry: %w", err)
		}
		perms, err := decodePermissions(rawPerms)
		if err != nil {
			return nil, err
		}
		e.Permissions = perms
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEntry fetches one matrix row.
func (s *Store) GetEntry(ctx context.Context, entityType EntityType, entityID uuid.UUID, role authz.RoleID) (MatrixEntry, error) {
	var (
		e        MatrixEntry
		rawPerms []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT entity_type, entity_id, role, permissions, version, allow_child_override, updated_at
		 FROM permission_matrix WHERE entity_type = $1 AND entity_id = $2 AND role = $3`,
		entityType, entityID, role).
		Scan(&e.EntityType, &e.EntityID, &e.Role, &rawPerms, &e.Version, &e.AllowChildOverride, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MatrixEntry{}, fmt.Errorf("hierarchy: %w: matrix entry", authz.ErrNotFound)
		}
		return MatrixEntry{}, fmt.Errorf("hierarchy: get matrix entry: %w", err)
	}
	perms, err := decodePermissions(rawPerms)
	if err != nil {
		return MatrixEntry{}, err
	}
	e.Permissions = perms
	return e, nil
}

// InsertEntry creates a matrix row at version 1. A concurrent insert of
// the same (entity type, entity id, role) maps to ErrConflict.
func (s *Store) InsertEntry(ctx context.Context, orgID uuid.UUID, e MatrixEntry) (MatrixEntry, error) {
	rawPerms, err := encodePermissions(e.Permissions)
	if err != nil {
		return MatrixEntry{}, err
	}
	e.Version = 1
	e.UpdatedAt = time.Now()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO permission_matrix
		 (organization_id, entity_type, entity_id, role, permissions, version, allow_child_override, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		orgID, e.EntityType, e.EntityID, e.Role, rawPerms, e.Version, e.AllowChildOverride, e.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return MatrixEntry{}, fmt.Errorf("hierarchy: %w: matrix entry already exists", authz.ErrConflict)
		}
		return MatrixEntry{}, fmt.Errorf("hierarchy: insert matrix entry: %w", err)
	}
	return e, nil
}

// UpdateEntry applies a compare-and-swap on the version column. Zero
// affected rows means the caller read a stale version (or the row is
// gone) and must refetch; lost updates are structurally impossible.
func (s *Store) UpdateEntry(ctx context.Context, e MatrixEntry, expectedVersion int64) (MatrixEntry, error) {
	rawPerms, err := encodePermissions(e.Permissions)
	if err != nil {
		return MatrixEntry{}, err
	}
	e.Version = expectedVersion + 1
	e.UpdatedAt = time.Now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE permission_matrix
		 SET permissions = $1, allow_child_override = $2, version = $3, updated_at = $4
		 WHERE entity_type = $5 AND entity_id = $6 AND role = $7 AND version = $8`,
		rawPerms, e.AllowChildOverride, e.Version, e.UpdatedAt,
		e.EntityType, e.EntityID, e.Role, expectedVersion)
	if err != nil {
		return MatrixEntry{}, fmt.Errorf("hierarchy: update matrix entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return MatrixEntry{}, fmt.Errorf("hierarchy: %w: expected version %d", authz.ErrConflict, expectedVersion)
	}
	return e, nil
}

// InsertDepartment persists a validated department node.
func (s *Store) InsertDepartment(ctx context.Context, d Department) error {
	rawComp, err := json.Marshal(d.ComplianceSettings)
	if err != nil {
		return fmt.Errorf("hierarchy: encode compliance settings: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO departments (id, organization_id, parent_department_id, name, compliance_settings, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.OrganizationID, d.ParentDepartmentID, d.Name, rawComp, d.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("hierarchy: %w: department already exists", authz.ErrConflict)
		}
		return fmt.Errorf("hierarchy: insert department: %w", err)
	}
	return nil
}

// DeleteDepartment removes the node after re-parenting children, teams
// and memberships to its parent inside one transaction. Members are
// never silently orphaned.
func (s *Store) DeleteDepartment(ctx context.Context, id uuid.UUID, parent *uuid.UUID) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE departments SET parent_department_id = $1 WHERE parent_department_id = $2`, parent, id); err != nil {
			return fmt.Errorf("hierarchy: reparent departments: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE teams SET department_id = $1 WHERE department_id = $2`, parent, id); err != nil {
			return fmt.Errorf("hierarchy: reparent teams: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM permission_matrix WHERE entity_type = $1 AND entity_id = $2`, EntityDepartment, id); err != nil {
			return fmt.Errorf("hierarchy: drop department matrix rows: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM departments WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("hierarchy: delete department: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("hierarchy: %w: department %s", authz.ErrNotFound, id)
		}
		return nil
	})
}

type wireOverride struct {
	Allowed  bool       `json:"allowed"`
	MaxScope *string    `json:"max_scope,omitempty"`
	Quota    *wireQuota `json:"quota,omitempty"`
}

type wireQuota struct {
	MaxItems  *int     `json:"max_items,omitempty"`
	RateLimit *int     `json:"rate_limit,omitempty"`
	Features  []string `json:"features,omitempty"`
}

func encodePermissions(perms map[authz.PermKey]Override) ([]byte, error) {
	wire := make(map[string]wireOverride, len(perms))
	for key, ov := range perms {
		w := wireOverride{Allowed: ov.Allowed}
		if ov.MaxScope != nil {
			s := ov.MaxScope.String()
			w.MaxScope = &s
		}
		if ov.Quota != nil {
			wq := &wireQuota{MaxItems: ov.Quota.MaxItems, RateLimit: ov.Quota.RateLimit}
			for f := range ov.Quota.Features {
				wq.Features = append(wq.Features, string(f))
			}
			w.Quota = wq
		}
		wire[string(key.Resource)+":"+string(key.Action)] = w
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: encode permissions: %w", err)
	}
	return raw, nil
}

func decodePermissions(raw []byte) (map[authz.PermKey]Override, error) {
	if len(raw) == 0 {
		return map[authz.PermKey]Override{}, nil
	}
	var wire map[string]wireOverride
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("hierarchy: decode permissions: %w", err)
	}
	perms := make(map[authz.PermKey]Override, len(wire))
	for rawKey, w := range wire {
		key, err := parsePermKey(rawKey)
		if err != nil {
			return nil, err
		}
		ov := Override{Allowed: w.Allowed}
		if w.MaxScope != nil {
			scope, err := authz.ParseScope(*w.MaxScope)
			if err != nil {
				return nil, fmt.Errorf("hierarchy: %w: %v", authz.ErrValidation, err)
			}
			ov.MaxScope = &scope
		}
		if w.Quota != nil {
			q := &authz.Quota{MaxItems: w.Quota.MaxItems, RateLimit: w.Quota.RateLimit}
			if len(w.Quota.Features) > 0 {
				q.Features = make(authz.FeatureSet, len(w.Quota.Features))
				for _, f := range w.Quota.Features {
					q.Features[authz.FeatureFlag(f)] = struct{}{}
				}
			}
			ov.Quota = q
		}
		perms[key] = ov
	}
	return perms, nil
}

func parsePermKey(raw string) (authz.PermKey, error) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			res := authz.Resource(raw[:i])
			act := authz.Action(raw[i+1:])
			if !res.Valid() || !act.Valid() {
				return authz.PermKey{}, fmt.Errorf("hierarchy: %w: unknown permission key %q", authz.ErrValidation, raw)
			}
			return authz.PermKey{Resource: res, Action: act}, nil
		}
	}
	return authz.PermKey{}, fmt.Errorf("hierarchy: %w: malformed permission key %q", authz.ErrValidation, raw)
}
