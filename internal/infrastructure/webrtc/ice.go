package webrtc

import (
	"encoding/json"
	"fmt"
	"strings"

	"callrelay/internal/core/domain"
	"callrelay/pkg/config"

	"github.com/pion/webrtc/v3"
)

var iceSchemes = []string{"stun:", "stuns:", "turn:", "turns:"}

// ICEServers converts configured STUN/TURN servers into the form browsers
// accept in RTCConfiguration.iceServers.
func ICEServers(servers []config.ICEServer) ([]webrtc.ICEServer, error) {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, s := range servers {
		for _, u := range s.URLs {
			if !hasICEScheme(u) {
				return nil, fmt.Errorf("ice_servers[%d]: unsupported url %q", i, u)
			}
			if isTURN(u) && (s.Username == "" || s.Credential == "") {
				return nil, fmt.Errorf("ice_servers[%d]: turn url %q needs username and credential", i, u)
			}
		}

		server := webrtc.ICEServer{
			URLs:     s.URLs,
			Username: s.Username,
		}
		if s.Credential != "" {
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, server)
	}
	return out, nil
}

func hasICEScheme(u string) bool {
	for _, scheme := range iceSchemes {
		if strings.HasPrefix(u, scheme) {
			return true
		}
	}
	return false
}

func isTURN(u string) bool {
	return strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:")
}

// Greeting is the payload of the connected message sent to every new client.
type Greeting struct {
	Pairing    domain.PairingMode `json:"pairing"`
	ICEServers []webrtc.ICEServer `json:"ice_servers"`
}

func (g Greeting) Marshal() (json.RawMessage, error) {
	return json.Marshal(g)
}
