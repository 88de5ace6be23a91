package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/nexus/config"
)

func TestICEConfigService_STUNOnly(t *testing.T) {
	svc := NewICEConfigService(config.ICEConfig{
		STUNURLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"},
	})

	servers := svc.ICEServers()
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, servers[0].URLs)
	assert.Empty(t, servers[0].Username)
}

func TestICEConfigService_WithTURN(t *testing.T) {
	svc := NewICEConfigService(config.ICEConfig{
		STUNURLs:       []string{"stun:stun.example.org:3478"},
		TURNURL:        "turn:turn.example.org:3478",
		TURNUsername:   "nexus",
		TURNCredential: "s3cret",
	})

	servers := svc.ICEServers()
	require.Len(t, servers, 2)
	turn := servers[1]
	assert.Equal(t, []string{"turn:turn.example.org:3478"}, turn.URLs)
	assert.Equal(t, "nexus", turn.Username)
	assert.Equal(t, "s3cret", turn.Credential)

	// Dönen slice kopyadır
	servers[0].URLs = nil
	assert.NotNil(t, svc.ICEServers()[0].URLs)
}
