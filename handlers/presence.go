package handlers

import (
	"net/http"
	"strings"

	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg"
	"github.com/akinalp/nexus/services"
)

// PresenceHandler, presence sorgusunun REST karşılığı.
// WS'teki presence.query ile aynı service metodunu kullanır.
type PresenceHandler struct {
	presenceService services.PresenceService
}

// NewPresenceHandler, constructor.
func NewPresenceHandler(presenceService services.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService}
}

// Query godoc
// GET /api/presence?user_ids=a,b,c
func (h *PresenceHandler) Query(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("user_ids")
	if strings.TrimSpace(raw) == "" {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "query parameter 'user_ids' is required")
		return
	}

	ids := strings.Split(raw, ",")
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}

	statuses, err := h.presenceService.Statuses(r.Context(), ids)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, models.PresenceStatusesPayload{Statuses: statuses})
}
