package domain

import "encoding/json"

type MessageType string

// Inbound message types.
const (
	MessageJoin         MessageType = "join"
	MessageCheckPeer    MessageType = "check-peer"
	MessageCallUser     MessageType = "call-user"
	MessageCallAccepted MessageType = "call-accepted"
	MessageCallRejected MessageType = "call-rejected"
	MessageRejectCall   MessageType = "reject-call"
	MessageOffer        MessageType = "offer"
	MessageAnswer       MessageType = "answer"
	MessageICECandidate MessageType = "ice-candidate"
	MessageHangup       MessageType = "hangup"
	MessageEndCall      MessageType = "end-call"
)

// Outbound message types.
const (
	MessageConnected        MessageType = "connected"
	MessageJoined           MessageType = "joined"
	MessagePeerActive       MessageType = "peer-active"
	MessageNoPeer           MessageType = "no-peer"
	MessageIncomingCall     MessageType = "incoming-call"
	MessageStartWebRTC      MessageType = "start-webrtc"
	MessageCallEnded        MessageType = "call-ended"
	MessageUserDisconnected MessageType = "user-disconnected"
	MessageError            MessageType = "error"
)

// Reasons carried by call-ended.
const (
	ReasonRejected          = "rejected"
	ReasonAnsweredElsewhere = "answered-elsewhere"
)

// IsNegotiation reports whether t is one of the relayed session description
// or candidate messages.
func (t MessageType) IsNegotiation() bool {
	switch t {
	case MessageOffer, MessageAnswer, MessageICECandidate:
		return true
	}
	return false
}

// Inbound is a frame received from a client. Payload is opaque.
type Inbound struct {
	Type    MessageType     `json:"type"`
	To      ConnectionID    `json:"to,omitempty"`
	Room    RoomID          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is a frame sent to a client.
type Outbound struct {
	Type    MessageType     `json:"type"`
	ID      ConnectionID    `json:"id,omitempty"`
	From    ConnectionID    `json:"from,omitempty"`
	Room    RoomID          `json:"room,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Envelope pairs an outbound message with its recipient.
type Envelope struct {
	To      ConnectionID
	Message Outbound
}
