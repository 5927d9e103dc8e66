package roles

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/taskforge-hq/taskforge/internal/platform/httpx"
)

// Handler exposes the role catalogue to administrators.
type Handler struct {
	logger   *slog.Logger
	registry *Registry
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, registry *Registry) *Handler {
	return &Handler{logger: logger, registry: registry}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Post("/reload", h.reload)
}

type roleView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Grants      int    `json:"grants"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	list := h.registry.List()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	views := make([]roleView, 0, len(list))
	for _, role := range list {
		views = append(views, roleView{
			ID:          string(role.ID),
			Name:        role.Name,
			Description: role.Description,
			Grants:      len(role.BasePermissions),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": views})
}

func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Invalidate(r.Context()); err != nil {
		h.logger.Error("reload role registry", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Reload Failed", "role registry reload failed")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "reloaded"})
}
