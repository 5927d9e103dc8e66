// Package membership reads team and organization memberships. The
// engine treats memberships as read-only input owned by the membership
// workflows elsewhere in the platform.
package membership

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

// Repository provides PostgreSQL backed membership reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListForUser returns every membership the subject holds.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]authz.Membership, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT subject_id, scope_kind, scope_id, role_in_scope
		 FROM memberships WHERE subject_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("membership: list for user: %w", err)
	}
	defer rows.Close()
	var out []authz.Membership
	for rows.Next() {
		var m authz.Membership
		if err := rows.Scan(&m.SubjectID, &m.ScopeKind, &m.ScopeID, &m.RoleInScope); err != nil {
			return nil, fmt.Errorf("membership: scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("membership: list for user: %w", err)
	}
	return out, nil
}
