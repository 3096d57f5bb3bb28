// Package memstore is an in-memory implementation of werewolf.DB, used in
// tests and for running the server without a database file. IDs are
// namespaced counters so tests stay deterministic.
package memstore

import (
	"fmt"
	"sync"

	"github.com/bcspragu/Werewolf/werewolf"
)

type idNamespace string

const (
	playerID = idNamespace("player")
	groupID  = idNamespace("group")
)

type DB struct {
	mu sync.Mutex

	ids     map[idNamespace]int
	players []*werewolf.Player
	groups  []*werewolf.Group
	current *werewolf.Session
	history []*werewolf.Session
}

func New() *DB {
	return &DB{
		ids: make(map[idNamespace]int),
	}
}

func (db *DB) NewPlayer(p *werewolf.Player) (werewolf.PlayerID, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	pID := werewolf.PlayerID(db.newID(playerID))

	pc := p.Clone()
	pc.ID = pID
	db.players = append(db.players, pc)

	return pID, nil
}

func (db *DB) Player(pID werewolf.PlayerID) (*werewolf.Player, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, p := range db.players {
		if p.ID == pID {
			return p.Clone(), nil
		}
	}
	return nil, werewolf.ErrPlayerNotFound
}

func (db *DB) Players() ([]*werewolf.Player, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	out := make([]*werewolf.Player, len(db.players))
	for i, p := range db.players {
		out[i] = p.Clone()
	}
	return out, nil
}

func (db *DB) UpdatePlayer(p *werewolf.Player) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for i, existing := range db.players {
		if existing.ID == p.ID {
			db.players[i] = p.Clone()
			return nil
		}
	}
	return werewolf.ErrPlayerNotFound
}

func (db *DB) DeletePlayer(pID werewolf.PlayerID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	idx := -1
	for i, p := range db.players {
		if p.ID == pID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return werewolf.ErrPlayerNotFound
	}

	db.players = append(db.players[:idx], db.players[idx+1:]...)

	// Deleted players also leave every group they were in.
	for _, g := range db.groups {
		kept := g.PlayerIDs[:0]
		for _, id := range g.PlayerIDs {
			if id != pID {
				kept = append(kept, id)
			}
		}
		g.PlayerIDs = kept
	}

	return nil
}

func (db *DB) NewGroup(g *werewolf.Group) (werewolf.GroupID, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	gID := werewolf.GroupID(db.newID(groupID))

	gc := g.Clone()
	gc.ID = gID
	db.groups = append(db.groups, gc)

	return gID, nil
}

func (db *DB) Group(gID werewolf.GroupID) (*werewolf.Group, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, g := range db.groups {
		if g.ID == gID {
			return g.Clone(), nil
		}
	}
	return nil, werewolf.ErrGroupNotFound
}

func (db *DB) Groups() ([]*werewolf.Group, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	out := make([]*werewolf.Group, len(db.groups))
	for i, g := range db.groups {
		out[i] = g.Clone()
	}
	return out, nil
}

func (db *DB) UpdateGroup(g *werewolf.Group) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for i, existing := range db.groups {
		if existing.ID == g.ID {
			db.groups[i] = g.Clone()
			return nil
		}
	}
	return werewolf.ErrGroupNotFound
}

func (db *DB) DeleteGroup(gID werewolf.GroupID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for i, g := range db.groups {
		if g.ID == gID {
			db.groups = append(db.groups[:i], db.groups[i+1:]...)
			return nil
		}
	}
	return werewolf.ErrGroupNotFound
}

func (db *DB) CurrentSession() (*werewolf.Session, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.current == nil {
		return nil, werewolf.ErrNoActiveSession
	}
	return db.current.Clone(), nil
}

func (db *DB) SetCurrentSession(s *werewolf.Session) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.current = s.Clone()
	return nil
}

func (db *DB) ArchiveCurrent(s *werewolf.Session) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.current == nil {
		return werewolf.ErrNoActiveSession
	}

	// Newest game first, same as the event log.
	db.history = append([]*werewolf.Session{s.Clone()}, db.history...)
	db.current = nil
	return nil
}

func (db *DB) History() ([]*werewolf.Session, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	out := make([]*werewolf.Session, len(db.history))
	for i, s := range db.history {
		out[i] = s.Clone()
	}
	return out, nil
}

func (db *DB) newID(ns idNamespace) string {
	idx := db.ids[ns]
	id := fmt.Sprintf("%s_%d", ns, idx)
	db.ids[ns]++
	return id
}
