package domain

import "time"

type CallKind string

const (
	CallKindAudio CallKind = "audio"
	CallKindVideo CallKind = "video"
)

func (k CallKind) Valid() bool {
	return k == CallKindAudio || k == CallKindVideo
}

type CallStatus string

const (
	CallStatusRinging   CallStatus = "ringing"
	CallStatusActive    CallStatus = "active"
	CallStatusEnded     CallStatus = "ended"
	CallStatusCancelled CallStatus = "cancelled"
)

func (s CallStatus) IsTerminal() bool {
	return s == CallStatusEnded || s == CallStatusCancelled
}

// Predecessors lists the statuses a call may move to s from. Call status
// only moves forward: ringing, then active, then ended or cancelled.
func (s CallStatus) Predecessors() []CallStatus {
	switch s {
	case CallStatusActive:
		return []CallStatus{CallStatusRinging}
	case CallStatusEnded, CallStatusCancelled:
		return []CallStatus{CallStatusRinging, CallStatusActive}
	}
	return nil
}

type ParticipantStatus string

const (
	ParticipantRinging  ParticipantStatus = "ringing"
	ParticipantJoined   ParticipantStatus = "joined"
	ParticipantDeclined ParticipantStatus = "declined"
	ParticipantMissed   ParticipantStatus = "missed"
	ParticipantLeft     ParticipantStatus = "left"
)

func (s ParticipantStatus) IsTerminal() bool {
	switch s {
	case ParticipantDeclined, ParticipantMissed, ParticipantLeft:
		return true
	}
	return false
}

// Sources lists the statuses from which a participant may move to s.
// Terminal states have no outgoing edges.
func (s ParticipantStatus) Sources() []ParticipantStatus {
	switch s {
	case ParticipantJoined, ParticipantDeclined, ParticipantMissed:
		return []ParticipantStatus{ParticipantRinging}
	case ParticipantLeft:
		return []ParticipantStatus{ParticipantRinging, ParticipantJoined}
	}
	return nil
}

func CanTransition(from, to ParticipantStatus) bool {
	for _, s := range to.Sources() {
		if s == from {
			return true
		}
	}
	return false
}

type CallParticipant struct {
	UserID    string
	Status    ParticipantStatus
	InvitedBy string
	JoinedAt  *time.Time
	EndedAt   *time.Time
	CreatedAt time.Time
}

// EverJoined reports whether the participant was in the call at some point,
// including participants who have since left.
func (p CallParticipant) EverJoined() bool {
	return p.JoinedAt != nil
}

type Call struct {
	ID           string
	ChatID       string
	InitiatorID  string
	Kind         CallKind
	Status       CallStatus
	Participants []CallParticipant
	StartedAt    time.Time
	EndedAt      *time.Time
}

func (c *Call) Participant(userID string) *CallParticipant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

func (c *Call) ParticipantIDs() []string {
	ids := make([]string, len(c.Participants))
	for i, p := range c.Participants {
		ids[i] = p.UserID
	}
	return ids
}

// WithStatus returns the user ids of participants currently in status.
func (c *Call) WithStatus(status ParticipantStatus) []string {
	var ids []string
	for _, p := range c.Participants {
		if p.Status == status {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

// DeriveStatus computes the call status from its non-initiator participants.
// The call is terminal once every callee is terminal: ended if any callee
// ever joined, cancelled otherwise.
func (c *Call) DeriveStatus() CallStatus {
	var ringing, joinedNow, everJoined bool
	for _, p := range c.Participants {
		if p.UserID == c.InitiatorID {
			continue
		}
		switch p.Status {
		case ParticipantRinging:
			ringing = true
		case ParticipantJoined:
			joinedNow = true
		}
		if p.EverJoined() {
			everJoined = true
		}
	}
	switch {
	case !ringing && !joinedNow && everJoined:
		return CallStatusEnded
	case !ringing && !joinedNow:
		return CallStatusCancelled
	case joinedNow || everJoined:
		return CallStatusActive
	}
	return CallStatusRinging
}

// IsMissedFor is evaluated at query time: a callee missed the call if they
// timed out, or were still ringing when the call reached a terminal status.
func (c *Call) IsMissedFor(userID string) bool {
	if userID == c.InitiatorID {
		return false
	}
	p := c.Participant(userID)
	if p == nil {
		return false
	}
	if p.Status == ParticipantMissed {
		return true
	}
	return p.Status == ParticipantRinging && c.Status.IsTerminal()
}

func (c *Call) IsIncomingFor(userID string) bool {
	return userID != c.InitiatorID && c.Participant(userID) != nil
}

// CallView is a call as seen by one participant.
type CallView struct {
	*Call
	Missed   bool `json:"missed"`
	Incoming bool `json:"incoming"`
}

func (c *Call) ViewFor(userID string) CallView {
	return CallView{Call: c, Missed: c.IsMissedFor(userID), Incoming: c.IsIncomingFor(userID)}
}
