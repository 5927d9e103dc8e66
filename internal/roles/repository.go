package roles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

// Repository provides PostgreSQL backed persistence for role records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadRoles returns every role with its base permission table attached.
func (r *Repository) LoadRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("roles: list roles: %w", err)
	}
	defer rows.Close()

	var list []Role
	index := make(map[authz.RoleID]int)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("roles: scan role: %w", err)
		}
		role.BasePermissions = make(map[PermKey]ScopeSpec)
		index[role.ID] = len(list)
		list = append(list, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roles: list roles: %w", err)
	}

	permRows, err := r.pool.Query(ctx, `SELECT role_id, resource, action, max_scope, tier_exempt FROM role_permissions`)
	if err != nil {
		return nil, fmt.Errorf("roles: list permissions: %w", err)
	}
	defer permRows.Close()
	for permRows.Next() {
		var (
			roleID     authz.RoleID
			resource   authz.Resource
			action     authz.Action
			rawScope   string
			tierExempt bool
		)
		if err := permRows.Scan(&roleID, &resource, &action, &rawScope, &tierExempt); err != nil {
			return nil, fmt.Errorf("roles: scan permission: %w", err)
		}
		maxScope, err := authz.ParseScope(rawScope)
		if err != nil {
			return nil, fmt.Errorf("roles: permission %s/%s/%s: %w", roleID, resource, action, err)
		}
		i, ok := index[roleID]
		if !ok {
			continue
		}
		list[i].BasePermissions[PermKey{Resource: resource, Action: action}] = ScopeSpec{
			MaxScope:   maxScope,
			TierExempt: tierExempt,
		}
	}
	if err := permRows.Err(); err != nil {
		return nil, fmt.Errorf("roles: list permissions: %w", err)
	}
	return list, nil
}
