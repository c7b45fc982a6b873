package transport

import (
	"context"
	"fmt"
	"sync"

	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const exchangeMethod = "/raft.Transport/Exchange"

var transportStreamDesc = grpc.StreamDesc{
	StreamName:    "Exchange",
	ServerStreams: true,
	ClientStreams: true,
}

// grpcServerHandler is the interface the hand-written ServiceDesc below
// dispatches to. No .proto file exists in the retrieval pack for this
// service (see DESIGN.md), so rather than hand-author protoc-gen-go's
// opaque descriptor-table output, the wire payload is a raw byte slice
// boxed in wrapperspb.BytesValue — a message type the protobuf module
// already ships a generated codec for — carrying an EncodeMessage/
// DecodeMessage-framed Message underneath.
type grpcServerHandler interface {
	handleExchange(stream grpc.ServerStream) error
}

func exchangeHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(grpcServerHandler).handleExchange(stream)
}

// ServiceDesc registers the single bidi-streaming Exchange RPC every peer
// dials every other peer on.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "raft.Transport",
	HandlerType: (*grpcServerHandler)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exchange",
			Handler:       exchangeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "raft_transport",
}

// GRPCServer receives inbound Exchange frames from every peer and
// deposits the decoded messages into hub for the locally-hosted node to
// poll via TryRecvMessage.
type GRPCServer struct {
	hub *Hub
}

// NewGRPCServer builds a server depositing received messages into hub.
func NewGRPCServer(hub *Hub) *GRPCServer {
	return &GRPCServer{hub: hub}
}

// Register attaches the Exchange service to server.
func (s *GRPCServer) Register(server *grpc.Server) {
	server.RegisterService(&ServiceDesc, s)
}

func (s *GRPCServer) handleExchange(stream grpc.ServerStream) error {
	for {
		var wrapped wrapperspb.BytesValue
		if err := stream.RecvMsg(&wrapped); err != nil {
			return err
		}
		msg, err := DecodeMessage(wrapped.Value)
		if err != nil {
			continue // drop a malformed frame rather than killing the stream
		}
		s.hub.deliver(msg)
	}
}

var _ grpcServerHandler = (*GRPCServer)(nil)

// Dialer maintains one outbound Exchange stream per peer, lazily dialing
// and reconnecting on failure, the same connection-caching shape as the
// teacher's GrpcTransport.getClient.
type Dialer struct {
	mu      sync.Mutex
	addrs   map[pkgraft.NodeId]string
	streams map[pkgraft.NodeId]grpc.ClientStream
}

// NewDialer builds a dialer that resolves a peer's address from addrs.
func NewDialer(addrs map[pkgraft.NodeId]string) *Dialer {
	return &Dialer{addrs: addrs, streams: make(map[pkgraft.NodeId]grpc.ClientStream)}
}

// Send dispatches msg fire-and-forget, matching SendMessage's contract.
func (d *Dialer) Send(msg pkgraft.Message) {
	go d.sendSync(msg)
}

func (d *Dialer) sendSync(msg pkgraft.Message) {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return
	}

	to := msg.Header().Destination
	stream, err := d.streamFor(to)
	if err != nil {
		return
	}
	if err := stream.SendMsg(&wrapperspb.BytesValue{Value: payload}); err != nil {
		d.mu.Lock()
		delete(d.streams, to)
		d.mu.Unlock()
	}
}

func (d *Dialer) streamFor(to pkgraft.NodeId) (grpc.ClientStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.streams[to]; ok {
		return s, nil
	}

	addr, ok := d.addrs[to]
	if !ok {
		return nil, fmt.Errorf("transport: no address known for node %s", to)
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", to, err)
	}

	stream, err := conn.NewStream(context.Background(), &transportStreamDesc, exchangeMethod)
	if err != nil {
		return nil, fmt.Errorf("transport: open stream to %s: %w", to, err)
	}

	d.streams[to] = stream
	return stream, nil
}

// GRPCIO is an IOProvider whose messaging crosses process boundaries:
// sends go out through a Dialer, and inbound traffic from every peer
// lands in a Hub shared with a GRPCServer bound to this node's listener.
type GRPCIO struct {
	*Storage
	*Clock
	self   pkgraft.NodeId
	hub    *Hub
	dialer *Dialer
}

// NewGRPCIO builds an IOProvider for node self.
func NewGRPCIO(self pkgraft.NodeId, hub *Hub, dialer *Dialer, storage *Storage, clock *Clock) *GRPCIO {
	return &GRPCIO{Storage: storage, Clock: clock, self: self, hub: hub, dialer: dialer}
}

func (io *GRPCIO) TryRecvMessage() (pkgraft.Message, bool) {
	return io.hub.poll(io.self)
}

func (io *GRPCIO) SendMessage(msg pkgraft.Message) {
	io.dialer.Send(msg)
}

var _ pkgraft.IOProvider = (*GRPCIO)(nil)
