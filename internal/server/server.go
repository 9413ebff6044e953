package server

import (
	"context"
	"io"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// GRPCServer wraps a gRPC server and listener.
type GRPCServer struct {
	Server   *grpc.Server
	Listener net.Listener
}

// NewGRPCServer listens on addr. Failed calls are logged with their code.
func NewGRPCServer(addr string, logger *log.Logger) (*GRPCServer, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{Time: 2 * time.Minute}),
		grpc.ChainUnaryInterceptor(logFailures(logger)),
	)
	reflection.Register(s)

	return &GRPCServer{Server: s, Listener: ln}, nil
}

func logFailures(logger *log.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Printf("grpc %s: %s after %s: %v", info.FullMethod, status.Code(err), time.Since(start).Round(time.Millisecond), err)
		}
		return resp, err
	}
}

func (s *GRPCServer) Serve() error {
	return s.Server.Serve(s.Listener)
}

// Stop drains in-flight calls.
func (s *GRPCServer) Stop() {
	s.Server.GracefulStop()
}
