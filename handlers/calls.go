package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/akinalp/nexus/pkg"
	"github.com/akinalp/nexus/services"
)

// CallHandler, aktif aramalar ve arama geçmişi endpoint'leri.
// Arama akışının kendisi WebSocket üzerinden yürür (bkz. SignalingHandler).
type CallHandler struct {
	callService    services.CallService
	callLogService services.CallLogService
}

// NewCallHandler, constructor.
func NewCallHandler(callService services.CallService, callLogService services.CallLogService) *CallHandler {
	return &CallHandler{
		callService:    callService,
		callLogService: callLogService,
	}
}

// Active godoc
// GET /api/calls/active
// Sayfa yenilenince client'ın yarım kalan aramayı bulması için.
func (h *CallHandler) Active(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	pkg.JSON(w, http.StatusOK, h.callService.ActiveFor(claims.UserID))
}

// History godoc
// GET /api/calls/history?before=RFC3339&limit=50
func (h *CallHandler) History(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var before time.Time
	if b := r.URL.Query().Get("before"); b != "" {
		parsed, err := time.Parse(time.RFC3339, b)
		if err != nil {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid 'before', expected RFC3339 timestamp")
			return
		}
		before = parsed
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	logs, err := h.callLogService.History(r.Context(), claims.UserID, before, limit)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, logs)
}
