package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TimelineFilters narrows the audit timeline query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Resource string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one rendered timeline line.
type TimelineRow struct {
	At       time.Time `json:"at"`
	ActorID  string    `json:"actor_id"`
	Resource string    `json:"resource"`
	Action   string    `json:"action"`
	Allowed  bool      `json:"allowed"`
	Scope    string    `json:"scope,omitempty"`
	DenyCode string    `json:"deny_code,omitempty"`
}

// PagingInfo carries cursorless paging metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result bundles rows with paging metadata.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// TimelineRepository is the query surface the service needs.
type TimelineRepository interface {
	TimelineWindow(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error)
}

// TimelineService coordinates audit timeline reads.
type TimelineService struct {
	repo TimelineRepository
}

// NewTimelineService builds a timeline service.
func NewTimelineService(repo TimelineRepository) *TimelineService {
	return &TimelineService{repo: repo}
}

// Timeline fetches a page of audit events. Page size is clamped to
// [1, 50]; one extra row is fetched to detect a following page.
func (s *TimelineService) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.TimelineWindow(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// TimelineRepo queries audit_events directly.
type TimelineRepo struct {
	pool *pgxpool.Pool
}

// NewTimelineRepo constructs the repository.
func NewTimelineRepo(pool *pgxpool.Pool) *TimelineRepo {
	return &TimelineRepo{pool: pool}
}

// TimelineWindow returns one window of the timeline, newest first.
func (r *TimelineRepo) TimelineWindow(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT occurred_at, actor_id, resource, action, allowed, scope, deny_code
		 FROM audit_events
		 WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		   AND ($2::timestamptz IS NULL OR occurred_at <= $2)
		   AND ($3::text = '' OR actor_id::text = $3)
		   AND ($4::text = '' OR resource = $4)
		   AND ($5::text = '' OR action = $5)
		 ORDER BY occurred_at DESC
		 OFFSET $6 LIMIT $7`,
		nullableTime(f.From), nullableTime(f.To), f.Actor, f.Resource, f.Action, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline window: %w", err)
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.At, &row.ActorID, &row.Resource, &row.Action, &row.Allowed, &row.Scope, &row.DenyCode); err != nil {
			return nil, fmt.Errorf("audit: scan timeline row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PurgeBefore deletes events older than cutoff and reports how many
// rows went away.
func (r *TimelineRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
