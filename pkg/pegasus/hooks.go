package pegasus

import (
	"net"
	"time"
)

// Hook is the empty marker interface every session-lifecycle observer
// implements; a concrete Hook only needs to satisfy one or more of the
// typed sub-interfaces below. This mirrors the teacher's Hook/hooks.each
// family, giving the perf-counter sink (SPEC_FULL component 12)
// something to subscribe to without coupling it into Session/Executor
// control flow.
type Hook interface{}

// ConnectHook observes a Session's dial attempt, successful or not.
type ConnectHook interface {
	OnConnect(endpoint string, elapsed time.Duration, conn net.Conn, err error)
}

// DisconnectHook observes a Session connection's death.
type DisconnectHook interface {
	OnDisconnect(endpoint string)
}

// WriteHook observes a single wire write.
type WriteHook interface {
	OnWrite(endpoint string, method string, bytesWritten int, err error)
}

// ReadHook observes a single wire read.
type ReadHook interface {
	OnRead(endpoint string, method string, bytesRead int, err error)
}

type hookList []Hook

func (hs hookList) each(fn func(Hook)) {
	for _, h := range hs {
		fn(h)
	}
}

func (hs hookList) onConnect(endpoint string, elapsed time.Duration, conn net.Conn, err error) {
	hs.each(func(h Hook) {
		if h, ok := h.(ConnectHook); ok {
			h.OnConnect(endpoint, elapsed, conn, err)
		}
	})
}

func (hs hookList) onDisconnect(endpoint string) {
	hs.each(func(h Hook) {
		if h, ok := h.(DisconnectHook); ok {
			h.OnDisconnect(endpoint)
		}
	})
}

func (hs hookList) onWrite(endpoint, method string, n int, err error) {
	hs.each(func(h Hook) {
		if h, ok := h.(WriteHook); ok {
			h.OnWrite(endpoint, method, n, err)
		}
	})
}

func (hs hookList) onRead(endpoint, method string, n int, err error) {
	hs.each(func(h Hook) {
		if h, ok := h.(ReadHook); ok {
			h.OnRead(endpoint, method, n, err)
		}
	})
}
