package cli

import (
	"fmt"
	"net"

	"google.golang.org/grpc"

	"github.com/cliyu/ferrous-raft/internal/transport"
)

// startGRPCServer binds the Exchange service to addr and serves it on a
// background goroutine, returning the server so callers can Stop it.
func startGRPCServer(addr string, hub *transport.Hub) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	server := grpc.NewServer()
	transport.NewGRPCServer(hub).Register(server)

	go func() {
		_ = server.Serve(lis)
	}()

	return server, nil
}
