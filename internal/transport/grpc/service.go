package grpc

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"

	"github.com/clippy-oss/homie/convo-engine/internal/domain"
)

const (
	ServiceName        = "convo.v1.Conversation"
	ExecuteMethod      = "/" + ServiceName + "/Execute"
	StreamEventsMethod = "/" + ServiceName + "/StreamEvents"
)

type ExecuteRequest struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

type ExecuteResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
}

type StreamEventsRequest struct {
	Types []domain.EventType `json:"types,omitempty"`
}

type Event struct {
	Kind      domain.EventType `json:"kind"`
	Payload   json.RawMessage  `json:"payload"`
	EventTime time.Time        `json:"event_time"`
}

type ConversationServer interface {
	Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error)
	StreamEvents(req *StreamEventsRequest, stream grpc.ServerStream) error
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConversationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: executeHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamEvents", Handler: streamEventsHandler, ServerStreams: true},
	},
	Metadata: "convo/v1/conversation",
}

// StreamEventsDesc is the client side description of the event stream.
var StreamEventsDesc = grpc.StreamDesc{StreamName: "StreamEvents", ServerStreams: true}

func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ExecuteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConversationServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ExecuteMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ConversationServer).Execute(ctx, req.(*ExecuteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func streamEventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(StreamEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ConversationServer).StreamEvents(in, stream)
}
