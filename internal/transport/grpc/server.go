package grpc

import (
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/clippy-oss/homie/convo-engine/internal/auth"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/intent"
	"github.com/clippy-oss/homie/convo-engine/internal/logger"
)

const stopTimeout = 5 * time.Second

type ServerConfig struct {
	Address string
}

type Server struct {
	server  *grpc.Server
	handler *Handler
	config  ServerConfig
}

func NewServer(
	dispatcher *intent.Dispatcher,
	eventBus domain.EventBus,
	authenticator *auth.Authenticator,
	config ServerConfig,
) *Server {
	handler := NewHandler(dispatcher, eventBus)
	log := logger.Module("grpc")

	server := grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(
			LoggingInterceptor(log),
			RecoveryInterceptor(log),
			AuthInterceptor(authenticator),
		),
		grpc.ChainStreamInterceptor(
			StreamLoggingInterceptor(log),
			StreamRecoveryInterceptor(log),
			StreamAuthInterceptor(authenticator),
		),
	)
	server.RegisterService(&ServiceDesc, handler)

	return &Server{
		server:  server,
		handler: handler,
		config:  config,
	}
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop drains in-flight calls. Event streams never finish on their own, so
// they are cut after stopTimeout.
func (s *Server) Stop() {
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		s.server.Stop()
	}
}
