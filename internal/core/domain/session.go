package domain

import "time"

type SessionID string

type SessionState string

const (
	SessionIdle        SessionState = "idle"
	SessionRinging     SessionState = "ringing"
	SessionNegotiating SessionState = "negotiating"
	SessionActive      SessionState = "active"
)

// Session is one call attempt between a caller and the connections it rang.
// Callee is empty until an invitee accepts.
type Session struct {
	ID        SessionID
	Caller    ConnectionID
	Callee    ConnectionID
	Invitees  map[ConnectionID]struct{}
	State     SessionState
	StartedAt time.Time
}

// Participants returns every connection still attached to the session.
func (s *Session) Participants() []ConnectionID {
	out := []ConnectionID{s.Caller}
	if s.Callee != "" {
		return append(out, s.Callee)
	}
	for id := range s.Invitees {
		out = append(out, id)
	}
	return out
}

// Others returns the participants except id.
func (s *Session) Others(id ConnectionID) []ConnectionID {
	var out []ConnectionID
	for _, p := range s.Participants() {
		if p != id {
			out = append(out, p)
		}
	}
	return out
}

func (s *Session) HasInvitee(id ConnectionID) bool {
	_, ok := s.Invitees[id]
	return ok
}
