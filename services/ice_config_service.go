package services

import (
	"github.com/pion/webrtc/v4"

	"github.com/akinalp/nexus/config"
)

// ICEConfigService, client'ların RTCPeerConnection'a verdiği ICE server listesi.
//
// Sunucu STUN/TURN işletmez; sadece env'de tanımlı adresleri dağıtır.
// TURN_URL boşsa liste sadece STUN içerir.
type ICEConfigService interface {
	ICEServers() []webrtc.ICEServer
}

type iceConfigService struct {
	servers []webrtc.ICEServer
}

// NewICEConfigService, constructor. Liste bir kez kurulur.
func NewICEConfigService(cfg config.ICEConfig) ICEConfigService {
	var servers []webrtc.ICEServer

	for _, url := range cfg.STUNURLs {
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}

	if cfg.TURNURL != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{cfg.TURNURL},
			Username:   cfg.TURNUsername,
			Credential: cfg.TURNCredential,
		})
	}

	return &iceConfigService{servers: servers}
}

func (s *iceConfigService) ICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, len(s.servers))
	copy(out, s.servers)
	return out
}
