package transport

import (
	"sync"
)

// eventKind discriminates the events a dispatcher delivers.
type eventKind int

const (
	eventConnection eventKind = iota
	eventDisconnection
	eventFrame
	eventError
)

// event is one queued handler invocation.
type event struct {
	kind     eventKind
	peer     PeerID
	outbound bool
	addr     string
	payload  []byte
	err      error
}

// dispatcherQueueSize bounds the event backlog before emitters block. A full
// queue applies backpressure to the socket read loops rather than dropping
// events.
const dispatcherQueueSize = 64

// dispatcher serializes event delivery for one transport instance. A single
// goroutine invokes all handlers, so handlers observe events in emission
// order: the connection event for a peer always precedes its frames, and
// frames from one connection arrive in receipt order.
type dispatcher struct {
	mu             sync.RWMutex
	onConnection   ConnectionHandler
	onDisconnection DisconnectionHandler
	onFrame        FrameHandler
	onError        ErrorHandler

	events   chan event
	quit     chan struct{}
	done     chan struct{}
	quitOnce sync.Once
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		events: make(chan event, dispatcherQueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *dispatcher) loop() {
	defer close(d.done)
	for {
		select {
		case <-d.quit:
			return
		case ev := <-d.events:
			d.deliver(ev)
		}
	}
}

func (d *dispatcher) deliver(ev event) {
	d.mu.RLock()
	connH, discH, frameH, errH := d.onConnection, d.onDisconnection, d.onFrame, d.onError
	d.mu.RUnlock()

	switch ev.kind {
	case eventConnection:
		if connH != nil {
			connH(ev.peer, ev.outbound, ev.addr)
		}
	case eventDisconnection:
		if discH != nil {
			discH(ev.peer)
		}
	case eventFrame:
		if frameH != nil {
			frameH(ev.peer, ev.payload)
		}
	case eventError:
		if errH != nil {
			errH(ev.err)
		}
	}
}

// emit queues an event for delivery. Events emitted after stop are dropped,
// which is what keeps lingering sockets silent once the transport is stopped.
func (d *dispatcher) emit(ev event) {
	select {
	case <-d.quit:
	case d.events <- ev:
	}
}

// stop halts delivery and waits for the loop to exit. After stop returns no
// handler invocation starts.
func (d *dispatcher) stop() {
	d.quitOnce.Do(func() {
		close(d.quit)
	})
	<-d.done
}

func (d *dispatcher) setConnectionHandler(h ConnectionHandler) {
	d.mu.Lock()
	d.onConnection = h
	d.mu.Unlock()
}

func (d *dispatcher) setDisconnectionHandler(h DisconnectionHandler) {
	d.mu.Lock()
	d.onDisconnection = h
	d.mu.Unlock()
}

func (d *dispatcher) setFrameHandler(h FrameHandler) {
	d.mu.Lock()
	d.onFrame = h
	d.mu.Unlock()
}

func (d *dispatcher) setErrorHandler(h ErrorHandler) {
	d.mu.Lock()
	d.onError = h
	d.mu.Unlock()
}
