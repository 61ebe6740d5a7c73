package domain

import "time"

type ConnectionID string

type RoomID string

// NoRoom selects every registered connection when passed to ListOthers.
const NoRoom RoomID = ""

type Connection struct {
	ID          ConnectionID
	Room        RoomID
	State       CallState
	ConnectedAt time.Time
}

type CallState string

const (
	CallStateIdle    CallState = "idle"
	CallStateCalling CallState = "calling"
	CallStateRinging CallState = "ringing"
	CallStateInCall  CallState = "in_call"
)

// PairingMode selects how recipients are resolved for a sender.
type PairingMode string

const (
	PairingGlobal    PairingMode = "global"
	PairingRoom      PairingMode = "room"
	PairingAddressed PairingMode = "addressed"
)

func ParsePairingMode(s string) (PairingMode, bool) {
	switch PairingMode(s) {
	case PairingGlobal, PairingRoom, PairingAddressed:
		return PairingMode(s), true
	}
	return "", false
}

// OfferInitiator names the side that receives start-webrtc and creates the offer.
type OfferInitiator string

const (
	OfferByCaller OfferInitiator = "caller"
	OfferByCallee OfferInitiator = "callee"
)
