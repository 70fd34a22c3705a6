package app

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

type sessionEntry struct {
	User    domain.UserID
	Session core.MemberSession
	Cancel  context.CancelFunc
	Rooms   map[domain.RoomID]struct{}
}

type userEntry struct {
	user     domain.User
	sessions int
}

// Registry maps live connections to users and to the rooms they joined. A
// user may hold several connections; status is tracked per user.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	users    map[domain.UserID]*userEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		users:    make(map[domain.UserID]*userEntry),
	}
}

// BindSignal registers a new connection for the session's user. The user
// starts out offline until the client announces itself.
func (r *Registry) BindSignal(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	u := sess.Meta().User
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{
		User:    u.ID,
		Session: sess,
		Cancel:  cancel,
		Rooms:   make(map[domain.RoomID]struct{}),
	}
	e, ok := r.users[u.ID]
	if !ok {
		e = &userEntry{user: *u}
		e.user.Status = domain.StatusOffline
		r.users[u.ID] = e
	}
	e.sessions++
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(u.ID)).Int("sessions", e.sessions).Msg("bound signal")
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// UserOf returns a copy of the user behind sid, status included.
func (r *Registry) UserOf(sid core.SessionID) (domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return domain.User{}, false
	}
	return r.users[e.User].user, true
}

// Unbind forgets sid and reports how many connections its user still has.
func (r *Registry) Unbind(sid core.SessionID) (remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return 0
	}
	delete(r.sessions, sid)
	if u, ok := r.users[e.User]; ok {
		u.sessions--
		remaining = u.sessions
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Int("remaining", remaining).Msg("unbind session")
	return remaining
}

// AddRoom records that sid joined room. It reports false if it already had.
func (r *Registry) AddRoom(sid core.SessionID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	if _, dup := e.Rooms[room]; dup {
		return false
	}
	e.Rooms[room] = struct{}{}
	return true
}

func (r *Registry) RemoveRoom(sid core.SessionID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	if _, in := e.Rooms[room]; !in {
		return false
	}
	delete(e.Rooms, room)
	return true
}

func (r *Registry) InRoom(sid core.SessionID, room domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	_, in := e.Rooms[room]
	return in
}

// RoomsOf lists the rooms sid is in, sorted.
func (r *Registry) RoomsOf(sid core.SessionID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil
	}
	out := make([]domain.RoomID, 0, len(e.Rooms))
	for id := range e.Rooms {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RoomsOfUser is RoomsOf across every connection of uid.
func (r *Registry) RoomsOfUser(uid domain.UserID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[domain.RoomID]struct{})
	for _, e := range r.sessions {
		if e.User != uid {
			continue
		}
		for id := range e.Rooms {
			seen[id] = struct{}{}
		}
	}
	out := make([]domain.RoomID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type regSnap struct {
	SID     core.SessionID
	Session core.MemberSession
}

func (r *Registry) MembersOfRoom(room domain.RoomID) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0)
	for sid, e := range r.sessions {
		if _, in := e.Rooms[room]; in {
			out = append(out, regSnap{SID: sid, Session: e.Session})
		}
	}
	return out
}

// SetStatus stores uid's status and reports whether it changed.
func (r *Registry) SetStatus(uid domain.UserID, s domain.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.users[uid]
	if !ok || e.user.Status == s {
		return false
	}
	e.user.Status = s
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Str("status", string(s)).Msg("status changed")
	return true
}

func (r *Registry) Status(uid domain.UserID) domain.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.users[uid]; ok {
		return e.user.Status
	}
	return domain.StatusOffline
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
