package grpc

import (
	"context"
	"encoding/json"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/auth"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/intent"
)

type Handler struct {
	dispatcher *intent.Dispatcher
	eventBus   domain.EventBus
}

func NewHandler(dispatcher *intent.Dispatcher, eventBus domain.EventBus) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		eventBus:   eventBus,
	}
}

func (h *Handler) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	userID, _ := auth.UserFrom(ctx)
	result, err := h.dispatcher.Execute(ctx, userID, req.Action, req.Params)
	if err != nil {
		return nil, toStatus(err)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode result")
	}
	return &ExecuteResponse{Result: data}, nil
}

// StreamEvents pushes every event addressed to the caller until the client
// goes away.
func (h *Handler) StreamEvents(req *StreamEventsRequest, stream grpc.ServerStream) error {
	userID, ok := auth.UserFrom(stream.Context())
	if !ok {
		return status.Error(codes.Unauthenticated, "no authenticated user")
	}

	eventCh := h.eventBus.Subscribe(domain.Filter{Recipient: userID, Types: req.Types})
	defer h.eventBus.Unsubscribe(eventCh)

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case event, ok := <-eventCh:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(event.Payload)
			if err != nil {
				continue
			}
			if err := stream.SendMsg(&Event{Kind: event.Kind, Payload: payload, EventTime: event.EventTime}); err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
		}
	}
}

var grpcCodes = map[apperr.Code]codes.Code{
	apperr.CodeUnauthorized:    codes.Unauthenticated,
	apperr.CodeForbidden:       codes.PermissionDenied,
	apperr.CodeNotFound:        codes.NotFound,
	apperr.CodeInvalidArgument: codes.InvalidArgument,
	apperr.CodeConflict:        codes.Aborted,
	apperr.CodeUnavailable:     codes.Unavailable,
	apperr.CodeInternal:        codes.Internal,
}

func toStatus(err error) error {
	code, msg := apperr.Public(err)
	c, ok := grpcCodes[code]
	if !ok {
		c = codes.Unknown
	}
	return status.Error(c, msg)
}
