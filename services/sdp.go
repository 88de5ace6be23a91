package services

import (
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"

	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg"
)

// maxSDPSize, kabul edilen en büyük SDP metni.
const maxSDPSize = 48 * 1024

// validateSDP, client'tan gelen offer/answer'ın parse edilebilir bir SDP
// olduğunu ve en az bir audio m-line'ı içerdiğini doğrular.
// Video araması için offer'da video m-line'ı da beklenir.
//
// Sunucu SDP'yi değiştirmez, sadece açıkça bozuk içeriği relay etmeden
// reddeder.
func validateSDP(raw string, kind models.CallKind, requireVideo bool) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: sdp is empty", pkg.ErrBadRequest)
	}
	if len(raw) > maxSDPSize {
		return fmt.Errorf("%w: sdp too large", pkg.ErrBadRequest)
	}

	desc, err := parseSDP(raw)
	if err != nil {
		return fmt.Errorf("%w: invalid sdp: %v", pkg.ErrBadRequest, err)
	}

	var hasAudio, hasVideo bool
	for _, m := range desc.MediaDescriptions {
		switch m.MediaName.Media {
		case "audio":
			hasAudio = true
		case "video":
			hasVideo = true
		}
	}

	if !hasAudio {
		return fmt.Errorf("%w: sdp has no audio media section", pkg.ErrBadRequest)
	}
	if requireVideo && kind == models.CallKindVideo && !hasVideo {
		return fmt.Errorf("%w: video call sdp has no video media section", pkg.ErrBadRequest)
	}
	return nil
}

func parseSDP(raw string) (*sdp.SessionDescription, error) {
	sd := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: raw}
	return sd.Unmarshal()
}
