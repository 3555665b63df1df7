package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/beaconmeet/relay-server-go/internal/metrics"
	"github.com/beaconmeet/relay-server-go/internal/model"
)

// Peer is the write side of one live connection.
type Peer interface {
	Send(data []byte) error
	Close(code int, reason string) error
	Closed() bool
}

// Entry binds a connection to the session and role it joined as. Broadcasts
// skip an entry until it is ready.
type Entry struct {
	ID   string
	Code string
	Role model.Role
	Peer Peer

	ready atomic.Bool
}

func NewEntry(code string, role model.Role, peer Peer) *Entry {
	return &Entry{
		ID:   uuid.NewString(),
		Code: code,
		Role: role,
		Peer: peer,
	}
}

// Registry tracks live connections per session code, in registration order.
type Registry struct {
	sessions map[string][]*Entry
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string][]*Entry),
	}
}

// Register adds entry and makes it receive broadcasts immediately.
func (r *Registry) Register(entry *Entry) {
	entry.ready.Store(true)
	r.add(entry)
}

// RegisterPending adds entry without making it a broadcast target, so the
// caller can write its first message before any relayed one. Activate ends
// the pending state.
func (r *Registry) RegisterPending(entry *Entry) {
	r.add(entry)
}

func (r *Registry) Activate(entry *Entry) {
	entry.ready.Store(true)
}

func (r *Registry) add(entry *Entry) {
	r.mu.Lock()
	r.sessions[entry.Code] = append(r.sessions[entry.Code], entry)
	count := len(r.sessions[entry.Code])
	r.mu.Unlock()

	metrics.ActiveConnections.Inc()
	metrics.TotalConnections.Inc()

	log.Debug().
		Str("code", entry.Code).
		Str("role", string(entry.Role)).
		Str("connId", entry.ID).
		Int("sessionConnections", count).
		Msg("connection registered")
}

// Unregister removes entry and reports whether it was registered.
func (r *Registry) Unregister(entry *Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.sessions[entry.Code]
	for i, e := range entries {
		if e != entry {
			continue
		}
		rest := make([]*Entry, 0, len(entries)-1)
		rest = append(rest, entries[:i]...)
		rest = append(rest, entries[i+1:]...)
		if len(rest) == 0 {
			delete(r.sessions, entry.Code)
		} else {
			r.sessions[entry.Code] = rest
		}
		metrics.ActiveConnections.Dec()
		return true
	}
	return false
}

// Broadcast sends msg to every open connection on code except the given
// entry, which may be nil. It returns the number of connections written to.
func (r *Registry) Broadcast(code string, msg any, except *Entry) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("encode broadcast: %w", err)
	}

	delivered := 0
	for _, entry := range r.snapshot(code) {
		if entry == except || !entry.ready.Load() || entry.Peer.Closed() {
			continue
		}
		if err := entry.Peer.Send(data); err != nil {
			log.Debug().Err(err).Str("connId", entry.ID).Msg("broadcast send failed")
			continue
		}
		delivered++
	}
	metrics.MessagesSent.Add(float64(delivered))
	return delivered, nil
}

// Send writes msg to a single entry.
func (r *Registry) Send(entry *Entry, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := entry.Peer.Send(data); err != nil {
		return err
	}
	metrics.MessagesSent.Inc()
	return nil
}

// CloseAll detaches every connection on code and closes them. Their close
// paths find nothing left to unregister.
func (r *Registry) CloseAll(code string, closeCode int, reason string) int {
	r.mu.Lock()
	entries := r.sessions[code]
	delete(r.sessions, code)
	r.mu.Unlock()

	metrics.ActiveConnections.Sub(float64(len(entries)))

	for _, entry := range entries {
		if err := entry.Peer.Close(closeCode, reason); err != nil {
			log.Debug().Err(err).Str("connId", entry.ID).Msg("close failed")
		}
	}
	return len(entries)
}

// Shutdown closes every tracked connection across all sessions.
func (r *Registry) Shutdown(closeCode int, reason string) int {
	r.mu.RLock()
	codes := make([]string, 0, len(r.sessions))
	for code := range r.sessions {
		codes = append(codes, code)
	}
	r.mu.RUnlock()

	closed := 0
	for _, code := range codes {
		closed += r.CloseAll(code, closeCode, reason)
	}
	return closed
}

// HasRole reports whether any connection, pending or ready, holds role on code.
func (r *Registry) HasRole(code string, role model.Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.sessions[code] {
		if entry.Role == role {
			return true
		}
	}
	return false
}

func (r *Registry) Count(code string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[code])
}

func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, entries := range r.sessions {
		total += len(entries)
	}
	return total
}

func (r *Registry) snapshot(code string) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.sessions[code]
	out := make([]*Entry, len(entries))
	copy(out, entries)
	return out
}
