package tcpserver

import "errors"

// Pool is an ordered, caller-owned collection of sessions, kept in the
// order they were added. The Server never touches it except when the caller
// passes it to Serve. It is not safe for concurrent use.
type Pool struct {
	sessions []*Session
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{}
}

// Add appends session to the pool.
func (p *Pool) Add(session *Session) {
	p.sessions = append(p.sessions, session)
}

// Sessions returns a snapshot of the sessions in insertion order.
func (p *Pool) Sessions() []*Session {
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Len returns the number of sessions in the pool.
func (p *Pool) Len() int {
	return len(p.sessions)
}

// Get returns the session with the given id.
func (p *Pool) Get(id uint32) (*Session, bool) {
	for _, s := range p.sessions {
		if s.ID() == id {
			return s, true
		}
	}

	return nil, false
}

// Prune releases and removes every session that was disconnected or whose
// peer closed the connection.
//
// Returns:
//   - The number of sessions removed
func (p *Pool) Prune() int {
	kept := p.sessions[:0]
	removed := 0
	for _, s := range p.sessions {
		if s.IsConnected() && !s.PeerClosed() {
			kept = append(kept, s)
			continue
		}

		_ = s.Disconnect()
		removed++
	}

	clear(p.sessions[len(kept):])
	p.sessions = kept
	return removed
}

// Close releases every session and empties the pool.
//
// Returns:
//   - The joined errors from releasing sessions, if any
func (p *Pool) Close() error {
	var errs []error
	for _, s := range p.sessions {
		if err := s.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}

	clear(p.sessions)
	p.sessions = nil
	return errors.Join(errs...)
}
