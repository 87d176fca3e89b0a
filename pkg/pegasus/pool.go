package pegasus

import "sync"

// sessionPool interns one Session per endpoint (spec §4.3), recreating a
// fresh Session once the interned one transitions to Failed. Modeled on
// the teacher's lazy broker map (dcrodman-franz-go's Client holds a
// brokers map); here every lookup and insert runs under one mutex.
type sessionPool struct {
	cl *Client

	mu       sync.Mutex
	sessions map[string]*Session
}

func newSessionPool(cl *Client) *sessionPool {
	return &sessionPool{cl: cl, sessions: make(map[string]*Session)}
}

// get returns the live Session for endpoint, creating and eagerly
// connecting one if none exists or the interned one has died (spec
// §4.3 "get(endpoint) -> Session").
func (p *sessionPool) get(endpoint string) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[endpoint]; ok && !s.isDead() {
		return s
	}
	s := newSession(p.cl, endpoint)
	p.sessions[endpoint] = s
	return s
}

// closeAll terminates every interned session (spec §5 "Closing the
// client cancels all sessions and outstanding waiters").
func (p *sessionPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sessions {
		s.close()
	}
	p.sessions = make(map[string]*Session)
}
