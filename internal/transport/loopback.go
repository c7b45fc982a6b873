package transport

import (
	"sync"

	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"
)

// Hub is an in-process message bus for a cluster of nodes running inside
// the same program: every SendMessage reaches its destination by a plain
// mutex-guarded queue append, with no goroutines, sockets, or encoding
// involved. Grounded on original_source's MockIo, which plays the same
// role for the reference implementation's own test harness.
type Hub struct {
	mu      sync.Mutex
	inboxes map[pkgraft.NodeId][]pkgraft.Message
}

// NewHub creates an empty bus.
func NewHub() *Hub {
	return &Hub{inboxes: make(map[pkgraft.NodeId][]pkgraft.Message)}
}

func (h *Hub) deliver(msg pkgraft.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	to := msg.Header().Destination
	h.inboxes[to] = append(h.inboxes[to], msg)
}

func (h *Hub) poll(id pkgraft.NodeId) (pkgraft.Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	queue := h.inboxes[id]
	if len(queue) == 0 {
		return pkgraft.Message{}, false
	}
	msg := queue[0]
	h.inboxes[id] = queue[1:]
	return msg, true
}

// LoopbackIO is an IOProvider for a node whose peers all live in the same
// process, wired to a shared Hub for transport and a Storage for
// persistence. Useful for tests and single-process demo clusters; see
// GRPCIO for the cross-process transport.
type LoopbackIO struct {
	*Storage
	*Clock
	hub  *Hub
	self pkgraft.NodeId
}

// NewLoopbackIO builds an IOProvider for node self, registered with hub.
func NewLoopbackIO(self pkgraft.NodeId, hub *Hub, storage *Storage, clock *Clock) *LoopbackIO {
	return &LoopbackIO{Storage: storage, Clock: clock, hub: hub, self: self}
}

func (io *LoopbackIO) TryRecvMessage() (pkgraft.Message, bool) {
	return io.hub.poll(io.self)
}

func (io *LoopbackIO) SendMessage(msg pkgraft.Message) {
	io.hub.deliver(msg)
}

var _ pkgraft.IOProvider = (*LoopbackIO)(nil)
