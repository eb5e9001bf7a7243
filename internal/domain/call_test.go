package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func callWith(statuses map[string]ParticipantStatus, everJoined ...string) *Call {
	now := time.Now()
	c := &Call{ID: "c1", InitiatorID: "alice", Status: CallStatusRinging}
	c.Participants = append(c.Participants, CallParticipant{UserID: "alice", Status: ParticipantJoined, JoinedAt: &now})
	for _, u := range []string{"bob", "carol"} {
		st, ok := statuses[u]
		if !ok {
			continue
		}
		p := CallParticipant{UserID: u, Status: st}
		for _, j := range everJoined {
			if j == u {
				p.JoinedAt = &now
			}
		}
		c.Participants = append(c.Participants, p)
	}
	return c
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name       string
		statuses   map[string]ParticipantStatus
		everJoined []string
		want       CallStatus
	}{
		{"all callees ringing", map[string]ParticipantStatus{"bob": ParticipantRinging, "carol": ParticipantRinging}, nil, CallStatusRinging},
		{"one callee joined", map[string]ParticipantStatus{"bob": ParticipantJoined, "carol": ParticipantRinging}, []string{"bob"}, CallStatusActive},
		{"declined and missed is cancelled", map[string]ParticipantStatus{"bob": ParticipantDeclined, "carol": ParticipantMissed}, nil, CallStatusCancelled},
		{"joined then left is ended", map[string]ParticipantStatus{"bob": ParticipantLeft}, []string{"bob"}, CallStatusEnded},
		{"left while ringing is cancelled", map[string]ParticipantStatus{"bob": ParticipantLeft}, nil, CallStatusCancelled},
		{"left after joining with another still ringing stays active", map[string]ParticipantStatus{"bob": ParticipantLeft, "carol": ParticipantRinging}, []string{"bob"}, CallStatusActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, callWith(tt.statuses, tt.everJoined...).DeriveStatus())
		})
	}
}

func TestIsMissedFor(t *testing.T) {
	t.Run("timed out callee", func(t *testing.T) {
		c := callWith(map[string]ParticipantStatus{"bob": ParticipantMissed})
		assert.True(t, c.IsMissedFor("bob"))
	})

	t.Run("ringing at terminal call counts as missed", func(t *testing.T) {
		c := callWith(map[string]ParticipantStatus{"bob": ParticipantRinging})
		assert.False(t, c.IsMissedFor("bob"))
		c.Status = CallStatusEnded
		assert.True(t, c.IsMissedFor("bob"))
	})

	t.Run("initiator never missed", func(t *testing.T) {
		c := callWith(map[string]ParticipantStatus{"bob": ParticipantMissed})
		c.Status = CallStatusCancelled
		assert.False(t, c.IsMissedFor("alice"))
	})

	t.Run("declined is not missed", func(t *testing.T) {
		c := callWith(map[string]ParticipantStatus{"bob": ParticipantDeclined})
		c.Status = CallStatusCancelled
		assert.False(t, c.IsMissedFor("bob"))
		assert.True(t, c.ViewFor("bob").Incoming)
	})
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(ParticipantRinging, ParticipantJoined))
	assert.True(t, CanTransition(ParticipantJoined, ParticipantLeft))
	assert.True(t, CanTransition(ParticipantRinging, ParticipantLeft))
	assert.False(t, CanTransition(ParticipantJoined, ParticipantMissed))
	assert.False(t, CanTransition(ParticipantMissed, ParticipantJoined))
	assert.False(t, CanTransition(ParticipantLeft, ParticipantJoined))
	assert.False(t, CanTransition(ParticipantDeclined, ParticipantLeft))
}

func TestCallStatusPredecessors(t *testing.T) {
	assert.Empty(t, CallStatusRinging.Predecessors())
	assert.NotContains(t, CallStatusActive.Predecessors(), CallStatusEnded)
	assert.Contains(t, CallStatusCancelled.Predecessors(), CallStatusRinging)
}
