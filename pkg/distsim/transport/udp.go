package transport

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/jabolina/distsim/pkg/distsim/bus"
	"github.com/jabolina/distsim/pkg/distsim/types"
)

// MaxDatagramSize is the hard UDP payload ceiling; anything larger is
// dropped with an ERROR rather than attempted.
const MaxDatagramSize = 65507

type udpOutboundItem struct {
	addr *net.UDPAddr
	data []byte
}

// UDPTransport is the real, one-process-per-host Port implementation. It
// binds a single socket to 0.0.0.0:port (required for container
// deployment) and runs three goroutines: a blocking receive loop, a
// delivery worker (decode + serial-per-receiver dispatch), and a send
// worker draining the outbound queue.
type UDPTransport struct {
	log      types.Logger
	bus      *bus.EventBus
	localId  types.NodeId
	resolver Resolver
	conn     *net.UDPConn

	mu       sync.RWMutex
	handlers map[types.NodeId]Handler

	outbound *BoundedQueue
	inbound  *BoundedQueue

	wg      sync.WaitGroup
	closeCh chan struct{}
	once    sync.Once
}

// NewUDPTransport binds the local socket and starts the transport's three
// background tasks. A bind failure is fatal to the endpoint and is
// returned directly rather than surfaced as an ERROR event.
func NewUDPTransport(config UDPConfig, b *bus.EventBus, outCfg, inCfg QueueConfig, log types.Logger) (*UDPTransport, error) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: config.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind 0.0.0.0:%d: %w", config.Port, err)
	}

	t := &UDPTransport{
		log:      types.OrDefault(log, "udp-transport"),
		bus:      b,
		localId:  config.NodeId,
		resolver: config.Resolver,
		conn:     conn,
		handlers: make(map[types.NodeId]Handler),
		outbound: NewBoundedQueue(outCfg),
		inbound:  NewBoundedQueue(inCfg),
		closeCh:  make(chan struct{}),
	}

	t.wg.Add(3)
	go t.receiveLoop()
	go t.deliverLoop()
	go t.sendLoop()

	return t, nil
}

// RegisterHandler implements Port.
func (t *UDPTransport) RegisterHandler(nodeId types.NodeId, handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[nodeId] = handler
}

// UnregisterHandler implements Port.
func (t *UDPTransport) UnregisterHandler(nodeId types.NodeId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, nodeId)
}

// Send implements Port. sender must equal the local node id; this is the
// UDP-only half of the "receiver == message.receiver" and
// "sender == local node" validation checklist in §4.1.
func (t *UDPTransport) Send(receiver types.NodeId, message types.SimulationMessage) bool {
	if message.Receiver != receiver {
		emitError(t.bus, message.Sender, receiver, "receiver mismatch")
		return false
	}
	if message.Sender != t.localId {
		emitError(t.bus, message.Sender, receiver, "sender mismatch: not local node")
		return false
	}
	if err := message.Validate(); err != nil {
		emitError(t.bus, message.Sender, receiver, "validation failure: "+err.Error())
		return false
	}

	host, port, ok := t.resolver.Resolve(receiver)
	if !ok {
		emitError(t.bus, message.Sender, receiver, "unresolvable receiver address")
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		resolved, err := net.ResolveIPAddr("ip", host)
		if err != nil {
			emitError(t.bus, message.Sender, receiver, "address resolution failure: "+err.Error())
			return false
		}
		ip = resolved.IP
	}

	data, err := json.Marshal(message)
	if err != nil {
		emitError(t.bus, message.Sender, receiver, "serialization failure: "+err.Error())
		return false
	}
	if len(data) > MaxDatagramSize {
		emitError(t.bus, message.Sender, receiver, "datagram exceeds maximum size")
		return false
	}

	item := udpOutboundItem{addr: &net.UDPAddr{IP: ip, Port: port}, data: data}
	if !t.outbound.Push(item) {
		emitError(t.bus, message.Sender, receiver, "outbound queue overflow")
		return false
	}

	emitSent(t.bus, message.Sender, receiver, summarize(message))
	return true
}

// Broadcast implements Port.
func (t *UDPTransport) Broadcast(receivers []types.NodeId, message types.SimulationMessage) {
	for _, r := range receivers {
		t.Send(r, message.WithReceiver(r))
	}
}

func (t *UDPTransport) sendLoop() {
	defer t.wg.Done()
	ctx := closeCtx(t.closeCh)
	for {
		item, ok := t.outbound.Pop(ctx)
		if !ok {
			return
		}
		out := item.(udpOutboundItem)
		if _, err := t.conn.WriteToUDP(out.data, out.addr); err != nil {
			select {
			case <-t.closeCh:
				return
			default:
			}
			t.log.Warnf("udp write to %s failed: %v", out.addr, err)
		}
	}
}

func (t *UDPTransport) receiveLoop() {
	defer t.wg.Done()
	buf := make([]byte, MaxDatagramSize)
	for {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.closeCh:
				return
			default:
				t.log.Warnf("udp read failed: %v", err)
				continue
			}
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		if !t.inbound.Push(data) {
			emitError(t.bus, t.localId, "", "inbound queue overflow")
		}
	}
}

func (t *UDPTransport) deliverLoop() {
	defer t.wg.Done()
	ctx := closeCtx(t.closeCh)
	for {
		item, ok := t.inbound.Pop(ctx)
		if !ok {
			return
		}
		t.decodeAndDeliver(item.([]byte))
	}
}

func (t *UDPTransport) decodeAndDeliver(data []byte) {
	var msg types.SimulationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		emitError(t.bus, t.localId, "", "decode failure: "+err.Error())
		return
	}
	if err := msg.Validate(); err != nil {
		emitError(t.bus, t.localId, msg.Sender, "validation failure: "+err.Error())
		return
	}
	if msg.Receiver != t.localId {
		emitError(t.bus, t.localId, msg.Sender, "receiver mismatch")
		return
	}

	t.mu.RLock()
	handler, ok := t.handlers[msg.Receiver]
	t.mu.RUnlock()
	if !ok {
		emitError(t.bus, t.localId, msg.Sender, "no handler registered")
		return
	}

	t.dispatch(handler, msg)
}

func (t *UDPTransport) dispatch(handler Handler, msg types.SimulationMessage) {
	defer func() {
		if r := recover(); r != nil {
			emitError(t.bus, msg.Receiver, msg.Sender, "handler panic")
		}
	}()
	emitReceived(t.bus, msg.Receiver, msg.Sender, summarize(msg))
	handler(msg)
}

// Close implements Port: closes the socket (unblocking the receive loop),
// cancels the send/deliver loops, drains and discards both queues, and
// waits for all three tasks to exit.
func (t *UDPTransport) Close() {
	t.once.Do(func() {
		close(t.closeCh)
		t.conn.Close()
		t.outbound.Close()
		t.inbound.Close()
		t.wg.Wait()

		t.mu.Lock()
		t.handlers = make(map[types.NodeId]Handler)
		t.mu.Unlock()
	})
}
