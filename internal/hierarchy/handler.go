package hierarchy

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/taskforge-hq/taskforge/internal/authz"
	"github.com/taskforge-hq/taskforge/internal/platform/httpx"
)

// Handler exposes the permission-matrix and department admin API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	store     StorePort
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, store StorePort) *Handler {
	return &Handler{logger: logger, service: service, store: store, validator: validator.New()}
}

// MountRoutes registers hierarchy admin routes under /orgs/{orgID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/{orgID}", func(r chi.Router) {
		r.Get("/matrix", h.listMatrix)
		r.Put("/matrix/{entityType}/{entityID}/{role}", h.putEntry)
		r.Post("/departments", h.createDepartment)
		r.Delete("/departments/{deptID}", h.deleteDepartment)
	})
}

type overridePayload struct {
	Resource  string   `json:"resource" validate:"required"`
	Action    string   `json:"action" validate:"required"`
	Allowed   bool     `json:"allowed"`
	MaxScope  string   `json:"max_scope,omitempty"`
	MaxItems  *int     `json:"max_items,omitempty" validate:"omitempty,min=0"`
	RateLimit *int     `json:"rate_limit,omitempty" validate:"omitempty,min=0"`
	Features  []string `json:"features,omitempty"`
}

type putEntryPayload struct {
	Version            int64             `json:"version" validate:"min=0"`
	AllowChildOverride *bool             `json:"allow_child_override,omitempty"`
	Overrides          []overridePayload `json:"overrides" validate:"required,dive"`
}

func (h *Handler) putEntry(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed organization id")
		return
	}
	entityID, err := uuid.Parse(chi.URLParam(r, "entityID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed entity id")
		return
	}

	var payload putEntryPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	entry := MatrixEntry{
		EntityType:         EntityType(chi.URLParam(r, "entityType")),
		EntityID:           entityID,
		Role:               authz.RoleID(chi.URLParam(r, "role")),
		Permissions:        make(map[authz.PermKey]Override, len(payload.Overrides)),
		AllowChildOverride: true,
	}
	if payload.AllowChildOverride != nil {
		entry.AllowChildOverride = *payload.AllowChildOverride
	}
	for _, ov := range payload.Overrides {
		parsed, err := parseOverride(ov)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		entry.Permissions[authz.PermKey{Resource: authz.Resource(ov.Resource), Action: authz.Action(ov.Action)}] = parsed
	}

	written, err := h.service.PutEntry(r.Context(), orgID, entry, payload.Version)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entity_type": written.EntityType,
		"entity_id":   written.EntityID,
		"role":        written.Role,
		"version":     written.Version,
	})
}

func (h *Handler) listMatrix(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed organization id")
		return
	}
	snap, err := h.store.LoadSnapshot(r.Context(), orgID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	type entryView struct {
		EntityType         EntityType   `json:"entity_type"`
		EntityID           uuid.UUID    `json:"entity_id"`
		Role               authz.RoleID `json:"role"`
		Version            int64        `json:"version"`
		AllowChildOverride bool         `json:"allow_child_override"`
		Overrides          int          `json:"overrides"`
	}
	var views []entryView
	appendEntries := func(t EntityType, id uuid.UUID) {
		for _, e := range snap.EntriesAt(t, id) {
			views = append(views, entryView{
				EntityType:         e.EntityType,
				EntityID:           e.EntityID,
				Role:               e.Role,
				Version:            e.Version,
				AllowChildOverride: e.AllowChildOverride,
				Overrides:          len(e.Permissions),
			})
		}
	}
	appendEntries(EntityOrganization, snap.Organization.ID)
	for id := range snap.Departments {
		appendEntries(EntityDepartment, id)
	}
	for id := range snap.Teams {
		appendEntries(EntityTeam, id)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": views})
}

type createDepartmentPayload struct {
	Name               string            `json:"name" validate:"required,min=1,max=120"`
	ParentDepartmentID *uuid.UUID        `json:"parent_department_id,omitempty"`
	ComplianceSettings map[string]string `json:"compliance_settings,omitempty"`
}

func (h *Handler) createDepartment(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed organization id")
		return
	}
	var payload createDepartmentPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	dept, err := h.service.CreateDepartment(r.Context(), Department{
		OrganizationID:     orgID,
		ParentDepartmentID: payload.ParentDepartmentID,
		Name:               payload.Name,
		ComplianceSettings: payload.ComplianceSettings,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": dept.ID})
}

func (h *Handler) deleteDepartment(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed organization id")
		return
	}
	deptID, err := uuid.Parse(chi.URLParam(r, "deptID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed department id")
		return
	}
	if err := h.service.DeleteDepartment(r.Context(), orgID, deptID); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Version Conflict", "entry changed since it was read, refetch and retry")
	case errors.Is(err, authz.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "referenced entity does not exist")
	case errors.Is(err, authz.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("hierarchy admin request", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseOverride(p overridePayload) (Override, error) {
	res := authz.Resource(p.Resource)
	act := authz.Action(p.Action)
	if !res.Valid() || !act.Valid() {
		return Override{}, errors.New("unknown resource or action")
	}
	ov := Override{Allowed: p.Allowed}
	if p.MaxScope != "" {
		scope, err := authz.ParseScope(p.MaxScope)
		if err != nil {
			return Override{}, err
		}
		ov.MaxScope = &scope
	}
	if p.MaxItems != nil || p.RateLimit != nil || len(p.Features) > 0 {
		q := &authz.Quota{MaxItems: p.MaxItems, RateLimit: p.RateLimit}
		if len(p.Features) > 0 {
			q.Features = make(authz.FeatureSet, len(p.Features))
			for _, f := range p.Features {
				q.Features[authz.FeatureFlag(f)] = struct{}{}
			}
		}
		ov.Quota = q
	}
	return ov, nil
}
