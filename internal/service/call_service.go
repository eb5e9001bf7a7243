package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/logger"
	"github.com/clippy-oss/homie/convo-engine/internal/metrics"
	"github.com/clippy-oss/homie/convo-engine/internal/repository"
)

const DefaultMaxCallParticipants = 10

// RingScheduler arranges for Timeout to be invoked for a ringing
// participant after the ring deadline.
type RingScheduler interface {
	Schedule(callID, userID string)
}

type StartCallRequest struct {
	InitiatorID string
	Callees     []string
	Kind        domain.CallKind
	ChatID      string
}

// CallService drives the per-participant call state machine. Every
// transition is a single conditional store update; when two transitions
// race for the same participant exactly one applies and the loser sees the
// winner's state.
type CallService struct {
	callRepo        repository.CallRepository
	registry        *Registry
	fanout          *NotificationService
	eventBus        domain.EventBus
	ringer          RingScheduler
	maxParticipants int
	log             zerolog.Logger
}

func NewCallService(
	callRepo repository.CallRepository,
	registry *Registry,
	fanout *NotificationService,
	eventBus domain.EventBus,
	maxParticipants int,
) *CallService {
	if maxParticipants < 2 {
		maxParticipants = DefaultMaxCallParticipants
	}
	return &CallService{
		callRepo:        callRepo,
		registry:        registry,
		fanout:          fanout,
		eventBus:        eventBus,
		maxParticipants: maxParticipants,
		log:             logger.Module("call"),
	}
}

// SetRingScheduler wires the ring timeout trigger. Without one, ringing
// participants are only expired by ExpireRinging.
func (s *CallService) SetRingScheduler(r RingScheduler) {
	s.ringer = r
}

func (s *CallService) StartCall(ctx context.Context, req StartCallRequest) (*domain.Call, error) {
	if req.InitiatorID == "" {
		return nil, apperr.InvalidArgument("initiator is required")
	}
	if req.Kind == "" {
		req.Kind = domain.CallKindAudio
	}
	if !req.Kind.Valid() {
		return nil, apperr.InvalidArgument("unknown call kind")
	}
	if len(req.Callees) == 0 {
		return nil, apperr.InvalidArgument("a call needs at least one callee")
	}
	if len(req.Callees)+1 > s.maxParticipants {
		return nil, apperr.InvalidArgument("too many participants")
	}
	seen := map[string]bool{req.InitiatorID: true}
	for _, callee := range req.Callees {
		if callee == "" {
			return nil, apperr.InvalidArgument("callee id is required")
		}
		if seen[callee] {
			return nil, apperr.InvalidArgument("duplicate participant " + callee)
		}
		seen[callee] = true
	}

	if req.ChatID != "" {
		chat, err := s.registry.RequireParticipant(ctx, req.InitiatorID, req.ChatID)
		if err != nil {
			return nil, err
		}
		for _, callee := range req.Callees {
			if !chat.HasParticipant(callee) {
				return nil, apperr.InvalidArgument("callee " + callee + " is not in this chat")
			}
		}
	}
	for _, callee := range req.Callees {
		ok, err := s.registry.CanCall(ctx, req.InitiatorID, callee)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Forbidden("calling " + callee + " is blocked")
		}
	}

	at := now()
	call := &domain.Call{
		ID:          newID(),
		ChatID:      req.ChatID,
		InitiatorID: req.InitiatorID,
		Kind:        req.Kind,
		Status:      domain.CallStatusRinging,
		StartedAt:   at,
	}
	call.Participants = append(call.Participants, domain.CallParticipant{
		UserID:    req.InitiatorID,
		Status:    domain.ParticipantJoined,
		InvitedBy: req.InitiatorID,
		JoinedAt:  &at,
		CreatedAt: at,
	})
	for _, callee := range req.Callees {
		call.Participants = append(call.Participants, domain.CallParticipant{
			UserID:    callee,
			Status:    domain.ParticipantRinging,
			InvitedBy: req.InitiatorID,
			CreatedAt: at,
		})
	}

	if err := s.callRepo.Create(ctx, call); err != nil {
		return nil, storeErr("create call", err)
	}
	metrics.CallsStarted.WithLabelValues(string(call.Kind)).Inc()
	s.log.Debug().Str("call", call.ID).Str("initiator", call.InitiatorID).Int("callees", len(req.Callees)).Msg("call started")

	for _, callee := range req.Callees {
		s.scheduleRing(call.ID, callee)
	}
	events := domain.FanOut(req.Callees, domain.EventCallIncoming, call, at)
	events = append(events, domain.Envelope{Recipient: call.InitiatorID, Kind: domain.EventCallUpdated, Payload: call, EventTime: at})
	publish(s.eventBus, events)
	return call, nil
}

// Answer joins a ringing participant. Answering again after joining is
// a no-op; answering after declining, missing or leaving is a conflict.
func (s *CallService) Answer(ctx context.Context, callID, userID string) (*domain.Call, error) {
	call, applied, err := s.transition(ctx, callID, userID, domain.ParticipantJoined)
	if err != nil {
		return nil, err
	}
	if applied {
		return s.settle(ctx, callID)
	}
	if p := call.Participant(userID); p.Status == domain.ParticipantJoined {
		return call, nil
	}
	return nil, apperr.Conflict("call is no longer ringing for this participant")
}

// Decline rejects a ringing call. Declining twice is a no-op.
func (s *CallService) Decline(ctx context.Context, callID, userID string) (*domain.Call, error) {
	call, applied, err := s.transition(ctx, callID, userID, domain.ParticipantDeclined)
	if err != nil {
		return nil, err
	}
	if applied {
		return s.settle(ctx, callID)
	}
	if p := call.Participant(userID); p.Status == domain.ParticipantDeclined {
		return call, nil
	}
	return nil, apperr.Conflict("call is no longer ringing for this participant")
}

// Timeout marks a still-ringing participant as missed. It is invoked by the
// ring trigger, so a participant who already answered, declined or left
// makes it a no-op rather than an error.
func (s *CallService) Timeout(ctx context.Context, callID, userID string) (*domain.Call, error) {
	call, _, err := s.timeout(ctx, callID, userID, "timer")
	return call, err
}

func (s *CallService) timeout(ctx context.Context, callID, userID, trigger string) (*domain.Call, bool, error) {
	call, applied, err := s.transition(ctx, callID, userID, domain.ParticipantMissed)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		return call, false, nil
	}
	metrics.RingingExpired.WithLabelValues(trigger).Inc()
	call, err = s.settle(ctx, callID)
	return call, true, err
}

// Leave moves a participant out of the call from ringing or joined. Leaving
// again is a no-op.
func (s *CallService) Leave(ctx context.Context, callID, userID string) (*domain.Call, error) {
	call, applied, err := s.transition(ctx, callID, userID, domain.ParticipantLeft)
	if err != nil {
		return nil, err
	}
	if !applied {
		return call, nil
	}
	return s.settle(ctx, callID)
}

func (s *CallService) AddParticipant(ctx context.Context, callID, requesterID, userID string) (*domain.Call, error) {
	call, err := s.load(ctx, callID)
	if err != nil {
		return nil, err
	}
	if p := call.Participant(requesterID); p == nil || p.Status != domain.ParticipantJoined {
		return nil, apperr.Forbidden("only participants in the call can add others")
	}
	if call.Status.IsTerminal() {
		return nil, apperr.Conflict("call has ended")
	}
	if userID == "" {
		return nil, apperr.InvalidArgument("user id is required")
	}
	if call.Participant(userID) != nil {
		return nil, apperr.InvalidArgument("user is already part of this call")
	}
	ok, err := s.registry.CanCall(ctx, requesterID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("calling " + userID + " is blocked")
	}

	added, err := s.callRepo.AddParticipant(ctx, callID, userID, requesterID, s.maxParticipants, now())
	if err != nil {
		return nil, storeErr("add call participant", err)
	}
	if !added {
		return nil, apperr.InvalidArgument("call is full")
	}
	s.scheduleRing(callID, userID)

	call, err = s.load(ctx, callID)
	if err != nil {
		return nil, err
	}
	at := now()
	events := []domain.Envelope{{Recipient: userID, Kind: domain.EventCallIncoming, Payload: call, EventTime: at}}
	change := domain.ParticipantChange{CallID: callID, UserID: userID, Status: domain.ParticipantRinging}
	for _, id := range call.ParticipantIDs() {
		if id != userID {
			events = append(events, domain.Envelope{Recipient: id, Kind: domain.EventCallParticipant, Payload: change, EventTime: at})
		}
	}
	publish(s.eventBus, events)
	return call, nil
}

func (s *CallService) GetCall(ctx context.Context, callID, userID string) (domain.CallView, error) {
	call, err := s.load(ctx, callID)
	if err != nil {
		return domain.CallView{}, err
	}
	if call.Participant(userID) == nil {
		return domain.CallView{}, apperr.Forbidden("not a participant of this call")
	}
	return call.ViewFor(userID), nil
}

func (s *CallService) ListCalls(ctx context.Context, userID string, limit, offset int) ([]domain.CallView, error) {
	calls, err := s.callRepo.ListForUser(ctx, userID, pageSize(limit), offset)
	if err != nil {
		return nil, storeErr("list calls", err)
	}
	return views(calls, userID), nil
}

// MissedCallsFor lists calls userID was invited to and missed, newest first.
func (s *CallService) MissedCallsFor(ctx context.Context, userID string, limit int) ([]domain.CallView, error) {
	calls, err := s.callRepo.ListMissed(ctx, userID, pageSize(limit))
	if err != nil {
		return nil, storeErr("list missed calls", err)
	}
	return views(calls, userID), nil
}

func (s *CallService) CountMissedCalls(ctx context.Context, userID string) (int64, error) {
	n, err := s.callRepo.CountMissed(ctx, userID)
	if err != nil {
		return 0, storeErr("count missed calls", err)
	}
	return n, nil
}

// ExpireRinging times out every participant that has been ringing since
// before cutoff and returns how many were moved to missed.
func (s *CallService) ExpireRinging(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	refs, err := s.callRepo.ListRingingBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, storeErr("list ringing", err)
	}
	expired := 0
	for _, ref := range refs {
		_, applied, err := s.timeout(ctx, ref.CallID, ref.UserID, "sweeper")
		if err != nil {
			s.log.Warn().Err(err).Str("call", ref.CallID).Str("user", ref.UserID).Msg("failed to expire ringing participant")
			continue
		}
		if applied {
			expired++
		}
	}
	return expired, nil
}

// transition applies one conditional participant update and reports
// whether it won. On a lost race the returned call is the current state.
func (s *CallService) transition(ctx context.Context, callID, userID string, to domain.ParticipantStatus) (*domain.Call, bool, error) {
	call, err := s.load(ctx, callID)
	if err != nil {
		return nil, false, err
	}
	if call.Participant(userID) == nil {
		return nil, false, apperr.Forbidden("not a participant of this call")
	}
	// A participant still ringing on a finished call already counts as
	// missed; only the timeout may record that.
	if call.Status.IsTerminal() && to != domain.ParticipantMissed {
		return call, false, nil
	}

	applied, err := s.callRepo.TransitionParticipant(ctx, callID, userID, to, now())
	if err != nil {
		return nil, false, storeErr("update call participant", err)
	}
	metrics.CallTransitions.WithLabelValues(string(to), boolLabel(applied)).Inc()

	if !applied {
		current, err := s.load(ctx, callID)
		if err != nil {
			return nil, false, err
		}
		s.log.Info().
			Str("call", callID).
			Str("user", userID).
			Str("to", string(to)).
			Str("current", string(current.Participant(userID).Status)).
			Msg("call transition not applied")
		return current, false, nil
	}

	s.participantChanged(ctx, call, userID, to)
	return call, true, nil
}

func (s *CallService) participantChanged(ctx context.Context, call *domain.Call, userID string, to domain.ParticipantStatus) {
	s.log.Debug().Str("call", call.ID).Str("user", userID).Str("to", string(to)).Msg("call participant transition")
	change := domain.ParticipantChange{CallID: call.ID, UserID: userID, Status: to}
	publish(s.eventBus, domain.FanOut(call.ParticipantIDs(), domain.EventCallParticipant, change, now()))
	if to == domain.ParticipantMissed {
		if err := s.fanout.CallMissed(ctx, call, userID); err != nil {
			s.log.Warn().Err(err).Str("call", call.ID).Str("user", userID).Msg("failed to notify missed call")
		}
	}
}

// settle brings the call in line with its participants after a
// transition. Once nobody is in the call, callees still ringing are timed
// out; once the call is over, anyone still joined is moved to left. The
// call status itself only moves forward.
func (s *CallService) settle(ctx context.Context, callID string) (*domain.Call, error) {
	call, err := s.load(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.Status.IsTerminal() {
		return call, nil
	}

	if len(call.WithStatus(domain.ParticipantJoined)) == 0 {
		for _, userID := range call.WithStatus(domain.ParticipantRinging) {
			s.apply(ctx, call, userID, domain.ParticipantMissed)
		}
		if call, err = s.load(ctx, callID); err != nil {
			return nil, err
		}
	}

	next := call.DeriveStatus()
	if next.IsTerminal() {
		for _, userID := range call.WithStatus(domain.ParticipantJoined) {
			s.apply(ctx, call, userID, domain.ParticipantLeft)
		}
	}

	if next != call.Status {
		var endedAt *time.Time
		if next.IsTerminal() {
			at := now()
			endedAt = &at
		}
		applied, err := s.callRepo.UpdateStatus(ctx, callID, next, endedAt)
		if err != nil {
			return nil, storeErr("update call status", err)
		}
		if applied {
			metrics.CallStatusChanges.WithLabelValues(string(next)).Inc()
			s.log.Debug().Str("call", callID).Str("status", string(next)).Msg("call status changed")
		}
	}

	call, err = s.load(ctx, callID)
	if err != nil {
		return nil, err
	}
	publish(s.eventBus, domain.FanOut(call.ParticipantIDs(), domain.EventCallUpdated, call, now()))
	return call, nil
}

// apply is a best-effort transition used while settling; losing the race
// to another writer is expected.
func (s *CallService) apply(ctx context.Context, call *domain.Call, userID string, to domain.ParticipantStatus) {
	applied, err := s.callRepo.TransitionParticipant(ctx, call.ID, userID, to, now())
	if err != nil {
		s.log.Warn().Err(err).Str("call", call.ID).Str("user", userID).Msg("failed to settle participant")
		return
	}
	metrics.CallTransitions.WithLabelValues(string(to), boolLabel(applied)).Inc()
	if applied {
		if to == domain.ParticipantMissed {
			metrics.RingingExpired.WithLabelValues("teardown").Inc()
		}
		s.participantChanged(ctx, call, userID, to)
	}
}

func (s *CallService) scheduleRing(callID, userID string) {
	if s.ringer != nil {
		s.ringer.Schedule(callID, userID)
	}
}

func (s *CallService) load(ctx context.Context, callID string) (*domain.Call, error) {
	if callID == "" {
		return nil, apperr.InvalidArgument("call id is required")
	}
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, storeErr("load call", err)
	}
	if call == nil {
		return nil, apperr.NotFound("call not found")
	}
	return call, nil
}

func views(calls []*domain.Call, userID string) []domain.CallView {
	out := make([]domain.CallView, len(calls))
	for i, c := range calls {
		out[i] = c.ViewFor(userID)
	}
	return out
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
