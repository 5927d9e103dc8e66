package engine

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/taskforge-hq/taskforge/internal/audit"
	"github.com/taskforge-hq/taskforge/internal/authz"
	"github.com/taskforge-hq/taskforge/internal/platform/httpx"
)

// Handler exposes the decision endpoint.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	recorder *audit.Recorder
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine, recorder *audit.Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		engine:   engine,
		recorder: recorder,
		validate: validator.New(),
	}
}

// MountRoutes registers decision routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/decide", h.decide)
}

type targetPayload struct {
	OwnerID        string  `json:"owner_id" validate:"required,uuid4_rfc4122|uuid"`
	TeamID         *string `json:"team_id,omitempty" validate:"omitempty,uuid"`
	OrganizationID *string `json:"organization_id,omitempty" validate:"omitempty,uuid"`
	Visibility     string  `json:"visibility" validate:"required,oneof=personal team organization"`
}

type decidePayload struct {
	Resource     string         `json:"resource" validate:"required"`
	Action       string         `json:"action" validate:"required"`
	Target       *targetPayload `json:"target,omitempty"`
	CurrentItems *int           `json:"current_items,omitempty" validate:"omitempty,min=0"`
}

type quotaResponse struct {
	MaxItems  *int     `json:"max_items,omitempty"`
	RateLimit *int     `json:"rate_limit,omitempty"`
	Features  []string `json:"features,omitempty"`
}

type privilegeResponse struct {
	Name  string         `json:"name"`
	Tier  string         `json:"tier"`
	Quota *quotaResponse `json:"quota,omitempty"`
}

type decisionResponse struct {
	Allowed   bool               `json:"allowed"`
	Scope     string             `json:"scope,omitempty"`
	Privilege *privilegeResponse `json:"privilege,omitempty"`
	Code      string             `json:"code,omitempty"`
	Reason    string             `json:"reason,omitempty"`
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	user, ok := authz.UserFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}

	var payload decidePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	resource := authz.Resource(payload.Resource)
	action := authz.Action(payload.Action)
	target, err := payload.Target.toRef()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	decision := h.engine.Decide(r.Context(), user, resource, action, target)
	if payload.CurrentItems != nil {
		decision = h.engine.EnforceQuota(decision, *payload.CurrentItems)
	}

	if err := h.recorder.Record(r.Context(), audit.DecisionEvent(user, resource, action, target, decision)); err != nil {
		// A mutating decision without its audit record must not be
		// handed to the caller.
		h.logger.Error("audit record failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	httpx.JSON(w, http.StatusOK, toDecisionResponse(decision))
}

func (p *targetPayload) toRef() (*authz.TargetRef, error) {
	if p == nil {
		return nil, nil
	}
	ownerID, err := uuid.Parse(p.OwnerID)
	if err != nil {
		return nil, err
	}
	ref := &authz.TargetRef{OwnerID: ownerID, Visibility: authz.Visibility(p.Visibility)}
	if p.TeamID != nil {
		id, err := uuid.Parse(*p.TeamID)
		if err != nil {
			return nil, err
		}
		ref.TeamID = &id
	}
	if p.OrganizationID != nil {
		id, err := uuid.Parse(*p.OrganizationID)
		if err != nil {
			return nil, err
		}
		ref.OrganizationID = &id
	}
	return ref, nil
}

func toDecisionResponse(d authz.Decision) decisionResponse {
	out := decisionResponse{Allowed: d.Allowed}
	if !d.Allowed {
		out.Code = string(d.Code)
		out.Reason = d.Reason
		return out
	}
	out.Scope = d.Scope.String()
	priv := privilegeResponse{Name: d.Privilege.Name, Tier: d.Privilege.Tier.String()}
	if q := d.Privilege.Quota; q != nil {
		qr := &quotaResponse{MaxItems: q.MaxItems, RateLimit: q.RateLimit}
		for f := range q.Features {
			qr.Features = append(qr.Features, string(f))
		}
		sort.Strings(qr.Features)
		priv.Quota = qr
	}
	out.Privilege = &priv
	return out
}
