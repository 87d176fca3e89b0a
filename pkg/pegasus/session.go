package pegasus

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pegasus-kv/go-client/pkg/idl"
	"github.com/twmb/go-rbtree"
)

// connState is the RPC Session state machine (spec §4.2 / §3).
type connState int32

const (
	stateDisconnected connState = iota
	stateConnecting
	stateReady
	stateFailed
)

// callResult is what a pendingCall resolves to, whichever of {response,
// timeout, connection death, cancellation} gets there first.
type callResult struct {
	resp idl.Response
	err  error
}

// pendingCall is spec §3's "Pending call": (seqid, deadline, response
// channel, operation descriptor). completed guards against the reader
// goroutine, the deadline sweep, and die() all racing to resolve the
// same call; exactly one wins.
type pendingCall struct {
	seqID     int32
	req       idl.Request
	deadline  time.Time
	enqueued  time.Time
	resultCh  chan callResult
	completed int32
}

func (p *pendingCall) resolve(res callResult) bool {
	if !atomic.CompareAndSwapInt32(&p.completed, 0, 1) {
		return false
	}
	p.resultCh <- res
	return true
}

// deadlineItem orders pendingCalls in the rbtree sweep index by
// deadline, breaking ties on seqID for a stable total order (spec §8
// "Seqid uniqueness": no two concurrently pending calls on a session
// share a seqid, so this is a genuine total order).
type deadlineItem struct {
	seqID    int32
	deadline time.Time
}

func (d *deadlineItem) Less(than rbtree.Item) bool {
	o := than.(*deadlineItem)
	if d.deadline.Equal(o.deadline) {
		return d.seqID < o.seqID
	}
	return d.deadline.Before(o.deadline)
}

// Session is spec §4.2's RPC Session: a single full-duplex connection to
// one replica endpoint, framing outbound calls and demultiplexing
// responses by sequence id. Modeled directly on the teacher's
// broker+brokerCxn split (dcrodman-franz-go/pkg/kgo/broker.go), collapsed
// into one type because unlike a Kafka broker a Session does not survive
// its connection's death: once Failed, the Pool creates a fresh Session.
type Session struct {
	cl       *Client
	endpoint string

	state int32 // atomic connState

	reqs chan *pendingCall

	dieMu sync.RWMutex
	dead  int32

	conn net.Conn

	nextSeqID int32 // atomic, monotonic per session (spec §3)

	pendingMu sync.Mutex
	pending   map[int32]*pendingCall
	deadlines *rbtree.Tree
	nodes     map[int32]*rbtree.Node
	wake      chan struct{}

	ready chan struct{} // closed once Connecting resolves to Ready or Failed
	readyErr error
}

func newSession(cl *Client, endpoint string) *Session {
	s := &Session{
		cl:        cl,
		endpoint:  endpoint,
		reqs:      make(chan *pendingCall, 16),
		pending:   make(map[int32]*pendingCall),
		deadlines: new(rbtree.Tree),
		nodes:     make(map[int32]*rbtree.Node),
		wake:      make(chan struct{}, 1),
		ready:     make(chan struct{}),
	}
	atomic.StoreInt32(&s.state, int32(stateDisconnected))
	go s.run()
	go s.sweepTimeouts()
	return s
}

func (s *Session) loadState() connState { return connState(atomic.LoadInt32(&s.state)) }

// run drives the Disconnected -> Connecting -> {Ready,Failed} transition
// (spec §4.2 state machine) and, once Ready, becomes the serial writer
// loop draining s.reqs - one write in flight at a time, matching the
// teacher's handleReqs.
func (s *Session) run() {
	atomic.StoreInt32(&s.state, int32(stateConnecting))

	ctx, cancel := context.WithTimeout(context.Background(), s.cl.cfg.connectTimeout)
	start := time.Now()
	conn, err := s.cl.cfg.dialFn(ctx, "tcp", s.endpoint)
	cancel()
	s.cl.cfg.hooks.onConnect(s.endpoint, time.Since(start), conn, err)

	if err != nil {
		s.cl.cfg.logger.Log(LogLevelWarn, "session connect failed", "endpoint", s.endpoint, "err", err)
		s.readyErr = ErrConnection
		close(s.ready)
		s.die(ErrConnection)
		return
	}

	s.conn = conn
	atomic.StoreInt32(&s.state, int32(stateReady))
	close(s.ready)
	s.cl.cfg.logger.Log(LogLevelDebug, "session ready", "endpoint", s.endpoint)

	go s.readLoop()

	for pr := range s.reqs {
		if s.isDead() {
			pr.resolve(callResult{err: ErrSessionDead})
			continue
		}
		// Register before writing: readLoop may demultiplex the response
		// before this goroutine returns from the write syscall, and an
		// out-of-order reply to an unregistered seqid is discarded as
		// late with no deadline-sweep entry to ever unblock the caller
		// (spec §4.2 "out-of-order responses" / §8).
		s.registerPending(pr)
		if err := s.writeCall(pr); err != nil {
			if p := s.unregisterPending(pr.seqID); p != nil {
				p.resolve(callResult{err: err})
			}
			s.die(err)
			continue
		}
	}
}

func (s *Session) isDead() bool { return atomic.LoadInt32(&s.dead) == 1 }

// call enqueues req and blocks until response, deadline, or session
// death (spec §4.2 "call(op_descriptor, deadline)").
func (s *Session) call(ctx context.Context, req idl.Request, deadline time.Time) (idl.Response, error) {
	pr := &pendingCall{
		seqID:    atomic.AddInt32(&s.nextSeqID, 1),
		req:      req,
		deadline: deadline,
		enqueued: time.Now(),
		resultCh: make(chan callResult, 1),
	}

	dead := false
	s.dieMu.RLock()
	if s.isDead() {
		dead = true
	} else {
		select {
		case s.reqs <- pr:
		case <-ctx.Done():
			s.dieMu.RUnlock()
			return nil, ErrCancelled
		}
	}
	s.dieMu.RUnlock()
	if dead {
		return nil, ErrSessionDead
	}

	select {
	case res := <-pr.resultCh:
		s.recordCallMetrics(pr, res)
		return res.resp, res.err
	case <-ctx.Done():
		if pr.resolve(callResult{err: ErrCancelled}) {
			s.unregisterPending(pr.seqID)
		}
		res := <-pr.resultCh
		s.recordCallMetrics(pr, res)
		return res.resp, res.err
	}
}

// recordCallMetrics reports one RPC round trip's latency and outcome
// through the injected PerfCounters sink (SPEC_FULL component 12,
// spec §6 enable_perf_counter).
func (s *Session) recordCallMetrics(pr *pendingCall, res callResult) {
	s.cl.cfg.metrics.SampleLatency("pegasus.session.call_latency", time.Since(pr.enqueued), "op", pr.req.Name())
	if res.err != nil {
		s.cl.cfg.metrics.Incr("pegasus.session.call_errors", "op", pr.req.Name())
	} else {
		s.cl.cfg.metrics.Incr("pegasus.session.call_success", "op", pr.req.Name())
	}
}

func (s *Session) writeCall(pr *pendingCall) error {
	w := idl.NewWriter(128)
	idl.EncodeHeader(w, idl.Header{Method: pr.req.Name(), SeqID: pr.seqID, Type: idl.MessageCall})
	pr.req.Encode(w)
	body := w.Bytes()

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)

	if !pr.deadline.IsZero() {
		if d := time.Until(pr.deadline); d > 0 {
			s.conn.SetWriteDeadline(time.Now().Add(d))
		} else {
			return ErrTimeout
		}
	}
	n, err := s.conn.Write(frame)
	s.cl.cfg.hooks.onWrite(s.endpoint, pr.req.Name(), n, err)
	if err != nil {
		return ErrConnDead
	}
	return nil
}

// readLoop serially demultiplexes responses by seqid into the pending
// map (spec §4.2 "Ordering guarantee: responses may arrive in any
// order; only seqid correlation is guaranteed").
func (s *Session) readLoop() {
	for {
		sizeBuf := make([]byte, 4)
		if _, err := io.ReadFull(s.conn, sizeBuf); err != nil {
			s.die(ErrConnDead)
			return
		}
		size := binary.BigEndian.Uint32(sizeBuf)
		body := make([]byte, size)
		if _, err := io.ReadFull(s.conn, body); err != nil {
			s.die(ErrConnDead)
			return
		}

		r := idl.NewReader(body)
		hdr, err := idl.DecodeHeader(r)
		s.cl.cfg.hooks.onRead(s.endpoint, hdr.Method, len(body), err)
		if err != nil {
			continue // malformed frame; wait for the next one
		}

		pr := s.unregisterPending(hdr.SeqID)
		if pr == nil {
			// Late response for a call already timed out/cancelled
			// locally (spec §4.2 "a late server response for that
			// seqid is discarded").
			continue
		}

		if hdr.Type == idl.MessageException {
			pr.resolve(callResult{err: ErrConnDead})
			continue
		}

		resp := pr.req.NewResponse()
		if err := resp.Decode(r); err != nil {
			pr.resolve(callResult{err: ErrConnDead})
			continue
		}
		pr.resolve(callResult{resp: resp})
	}
}

func (s *Session) registerPending(pr *pendingCall) {
	s.pendingMu.Lock()
	if s.isDead() {
		s.pendingMu.Unlock()
		pr.resolve(callResult{err: ErrSessionDead})
		return
	}
	s.pending[pr.seqID] = pr
	if !pr.deadline.IsZero() {
		item := &deadlineItem{seqID: pr.seqID, deadline: pr.deadline}
		s.nodes[pr.seqID] = s.deadlines.Insert(item)
	}
	s.pendingMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) unregisterPending(seqID int32) *pendingCall {
	s.pendingMu.Lock()
	pr, ok := s.pending[seqID]
	if ok {
		delete(s.pending, seqID)
		if node, ok := s.nodes[seqID]; ok {
			s.deadlines.Delete(node)
			delete(s.nodes, seqID)
		}
	}
	s.pendingMu.Unlock()
	if !ok {
		return nil
	}
	return pr
}

// sweepTimeouts pops expired waiters off the deadline-ordered index in
// O(log n) per expiry rather than scanning the full pending map (spec
// §4.2 "Cancellation"; SPEC_FULL §4.2 domain-stack note on
// twmb/go-rbtree).
func (s *Session) sweepTimeouts() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		select {
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(0)
		case <-timer.C:
		}

		now := time.Now()
		var next time.Duration = time.Hour
		s.pendingMu.Lock()
		for {
			min := s.deadlines.Min()
			if min == nil {
				break
			}
			item := min.Item().(*deadlineItem)
			if item.deadline.After(now) {
				next = item.deadline.Sub(now)
				break
			}
			s.deadlines.Delete(min)
			delete(s.nodes, item.seqID)
			pr := s.pending[item.seqID]
			delete(s.pending, item.seqID)
			if pr != nil {
				pr.resolve(callResult{err: ErrTimeout})
			}
		}
		dead := s.isDead()
		s.pendingMu.Unlock()
		if dead {
			return
		}
		timer.Reset(next)
	}
}

// die permanently fails the session: spec §4.2 "Ready -> Failed on
// read/write error. Pending waiters complete with ConnectionReset; the
// session self-disposes."
func (s *Session) die(cause error) {
	if atomic.SwapInt32(&s.dead, 1) == 1 {
		return
	}
	atomic.StoreInt32(&s.state, int32(stateFailed))
	if s.conn != nil {
		s.conn.Close()
	}
	s.cl.cfg.hooks.onDisconnect(s.endpoint)
	s.cl.cfg.logger.Log(LogLevelWarn, "session died", "endpoint", s.endpoint, "err", cause)
	s.drainDead(cause)
}

func (s *Session) drainDead(cause error) {
	s.dieMu.Lock()
	defer s.dieMu.Unlock()

	s.pendingMu.Lock()
	for seqID, pr := range s.pending {
		delete(s.pending, seqID)
		pr.resolve(callResult{err: cause})
	}
	s.pendingMu.Unlock()

	// drain anything still sitting in reqs, not yet picked up by run()
	go func() {
		for {
			select {
			case pr := <-s.reqs:
				pr.resolve(callResult{err: cause})
			default:
				return
			}
		}
	}()
}

// close terminates the session (spec §4.2 "close()").
func (s *Session) close() { s.die(ErrCancelled) }
