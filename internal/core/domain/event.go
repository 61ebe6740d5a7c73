package domain

import "time"

type EventType string

const (
	EventConnectionRegistered   EventType = "connection.registered"
	EventConnectionUnregistered EventType = "connection.unregistered"
	EventRoomJoined             EventType = "room.joined"
	EventCallStarted            EventType = "call.started"
	EventCallAnswered           EventType = "call.answered"
	EventCallEnded              EventType = "call.ended"
)

// Event describes a lifecycle transition for observers outside the relay.
type Event struct {
	Type         EventType    `json:"type"`
	InstanceID   string       `json:"instance_id"`
	Timestamp    time.Time    `json:"timestamp"`
	ConnectionID ConnectionID `json:"connection_id,omitempty"`
	Room         RoomID       `json:"room,omitempty"`
	SessionID    SessionID    `json:"session_id,omitempty"`
	Reason       string       `json:"reason,omitempty"`
}
