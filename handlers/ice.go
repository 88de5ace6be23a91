package handlers

import (
	"net/http"

	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg"
	"github.com/akinalp/nexus/services"
)

// ICEHandler, client'ların RTCPeerConnection kurarken kullandığı
// STUN/TURN listesini döner.
type ICEHandler struct {
	iceService services.ICEConfigService
}

// NewICEHandler, constructor.
func NewICEHandler(iceService services.ICEConfigService) *ICEHandler {
	return &ICEHandler{iceService: iceService}
}

// Servers godoc
// GET /api/ice-servers
// TURN credential'ı içerdiği için yanıt cache'lenmez.
func (h *ICEHandler) Servers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	pkg.JSON(w, http.StatusOK, models.ICEServersResponse{
		ICEServers: h.iceService.ICEServers(),
	})
}
