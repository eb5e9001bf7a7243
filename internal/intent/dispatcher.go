// Package intent maps named client actions onto the conversation services.
// Every transport funnels through Dispatcher.Execute so authorization and
// error mapping are identical across them.
package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/logger"
	"github.com/clippy-oss/homie/convo-engine/internal/metrics"
	"github.com/clippy-oss/homie/convo-engine/internal/service"
)

type handlerFunc func(ctx context.Context, actor string, params json.RawMessage) (interface{}, error)

type Dispatcher struct {
	core     *service.Core
	handlers map[string]handlerFunc
	log      zerolog.Logger
}

func NewDispatcher(core *service.Core) *Dispatcher {
	d := &Dispatcher{core: core, log: logger.Module("intent")}
	d.handlers = map[string]handlerFunc{
		"chat.create_group":  d.chatCreateGroup,
		"chat.direct":        d.chatDirect,
		"chat.get":           d.chatGet,
		"chat.list":          d.chatList,
		"chat.add_member":    d.chatAddMember,
		"chat.remove_member": d.chatRemoveMember,
		"chat.set_admin":     d.chatSetAdmin,
		"chat.block":         d.chatBlock,
		"chat.unblock":       d.chatUnblock,

		"message.send":        d.messageSend,
		"message.send_direct": d.messageSendDirect,
		"message.mark_read":   d.messageMarkRead,
		"message.react":       d.messageReact,
		"message.unreact":     d.messageUnreact,
		"message.soft_delete": d.messageSoftDelete,
		"message.hard_delete": d.messageHardDelete,
		"message.edit":        d.messageEdit,
		"message.list":        d.messageList,

		"call.start":           d.callStart,
		"call.answer":          d.callAnswer,
		"call.decline":         d.callDecline,
		"call.leave":           d.callLeave,
		"call.add_participant": d.callAddParticipant,
		"call.get":             d.callGet,
		"call.list":            d.callList,
		"call.missed":          d.callMissed,

		"notification.list":           d.notificationList,
		"notification.mark_read":      d.notificationMarkRead,
		"notification.mark_all_read":  d.notificationMarkAllRead,
		"notification.dismiss":        d.notificationDismiss,
		"notification.friend_request": d.notificationFriendRequest,
	}
	return d
}

// Actions lists every supported action name, sorted.
func (d *Dispatcher) Actions() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs action on behalf of actor. Errors are *apperr.AppError.
func (d *Dispatcher) Execute(ctx context.Context, actor, action string, params json.RawMessage) (interface{}, error) {
	result, err := d.execute(ctx, actor, action, params)
	code := "OK"
	if err != nil {
		code = string(apperr.CodeOf(err))
		evt := d.log.Debug()
		if c := apperr.CodeOf(err); c == apperr.CodeInternal || c == apperr.CodeUnavailable {
			evt = d.log.Error()
		}
		evt.Err(err).Str("actor", actor).Str("action", action).Msg("intent failed")
	}
	metrics.IntentsTotal.WithLabelValues(action, code).Inc()
	return result, err
}

func (d *Dispatcher) execute(ctx context.Context, actor, action string, params json.RawMessage) (interface{}, error) {
	if actor == "" {
		return nil, apperr.Unauthorized("no authenticated user")
	}
	handler, ok := d.handlers[action]
	if !ok {
		return nil, apperr.InvalidArgument("unknown action: " + action)
	}
	return handler(ctx, actor, params)
}

func decode(params json.RawMessage, v interface{}) error {
	params = bytes.TrimSpace(params)
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.CodeInvalidArgument, "invalid params: "+err.Error(), err)
	}
	return nil
}

// NewResponse builds the wire response for a finished intent, hiding
// internal error detail from the client.
func NewResponse(id string, result interface{}, err error) Response {
	if err != nil {
		code, msg := apperr.Public(err)
		return Response{ID: id, Error: &ErrorBody{Code: string(code), Message: msg}}
	}
	return Response{ID: id, OK: true, Result: result}
}
