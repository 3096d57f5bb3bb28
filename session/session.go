// Package session implements the moderator-facing mutation rules for a
// running game. Every method works on the whole session value, the caller
// swaps the updated session back into the store when it's done.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bcspragu/Werewolf/werewolf"
)

// MinPlayers is the smallest game worth moderating. The setup screen
// disables the start button below this.
const MinPlayers = 4

var (
	ErrTooFewPlayers    = fmt.Errorf("session: games need at least %d players", MinPlayers)
	ErrPoolSizeMismatch = errors.New("session: role pool must match player count")
	ErrEmptyEvent       = errors.New("session: event text is empty")
)

// Game wraps a session with the rules for mutating it. A *Game can be
// constructed around any session, including ones loaded from storage.
type Game struct {
	s   *werewolf.Session
	now func() time.Time
}

// ForSession wraps an existing session. The now function is used to stamp
// events and the archive time, tests inject a fixed clock.
func ForSession(s *werewolf.Session, now func() time.Time) *Game {
	if now == nil {
		now = time.Now
	}
	return &Game{s: s, now: now}
}

// New validates the setup selection and starts a game. Games start
// straight into night one with every role undealt.
func New(id werewolf.SessionID, players []*werewolf.Player, pool []werewolf.Role, now func() time.Time) (*Game, error) {
	if len(players) < MinPlayers {
		return nil, ErrTooFewPlayers
	}
	if len(pool) != len(players) {
		return nil, ErrPoolSizeMismatch
	}

	if now == nil {
		now = time.Now
	}

	gps := make([]*werewolf.GamePlayer, len(players))
	for i, p := range players {
		gps[i] = &werewolf.GamePlayer{
			Player:   *p.Clone(),
			Role:     nil,
			Alive:    true,
			Statuses: []werewolf.Status{},
		}
	}

	return &Game{
		s: &werewolf.Session{
			ID:        id,
			StartTime: now(),
			Players:   gps,
			RolePool:  append([]werewolf.Role(nil), pool...),
			Status:    werewolf.Playing,
			Phase:     werewolf.Night,
			Round:     1,
			Events:    []string{},
		},
		now: now,
	}, nil
}

// Session returns the underlying session value.
func (g *Game) Session() *werewolf.Session {
	return g.s
}

// AssignRole hands the given role to a player. It's an unconditional
// overwrite, the caller is responsible for only offering roles from
// UnassignedRoles.
func (g *Game) AssignRole(pID werewolf.PlayerID, role werewolf.Role) error {
	gp := g.s.Player(pID)
	if gp == nil {
		return werewolf.ErrPlayerNotFound
	}
	r := role
	gp.Role = &r
	return nil
}

// UnassignRole takes a player's role back into the pool. Status effects
// are left alone.
func (g *Game) UnassignRole(pID werewolf.PlayerID) error {
	gp := g.s.Player(pID)
	if gp == nil {
		return werewolf.ErrPlayerNotFound
	}
	gp.Role = nil
	return nil
}

// ToggleAlive flips a player between alive and dead. Toggling twice is the
// identity. Status tags deliberately survive death, the moderator clears
// them by hand if the table rules call for it.
func (g *Game) ToggleAlive(pID werewolf.PlayerID) error {
	gp := g.s.Player(pID)
	if gp == nil {
		return werewolf.ErrPlayerNotFound
	}
	gp.Alive = !gp.Alive
	return nil
}

// ToggleStatus flips a status tag on a player. Adding a tag first enforces
// exclusivity: only one player can be PROTECTED, and LINKED behaves as a
// two-slot rolling window where the first linked player in table order is
// evicted to make room. Removing a tag never has side effects on anyone
// else.
func (g *Game) ToggleStatus(pID werewolf.PlayerID, st werewolf.Status) error {
	gp := g.s.Player(pID)
	if gp == nil {
		return werewolf.ErrPlayerNotFound
	}

	if !gp.HasStatus(st) {
		switch st {
		case werewolf.Protected:
			for _, p := range g.s.Players {
				p.Statuses = without(p.Statuses, werewolf.Protected)
			}
		case werewolf.Linked:
			if g.countStatus(werewolf.Linked) >= 2 {
				for _, p := range g.s.Players {
					if p.HasStatus(werewolf.Linked) {
						p.Statuses = without(p.Statuses, werewolf.Linked)
						break
					}
				}
			}
		}
	}

	if gp.HasStatus(st) {
		gp.Statuses = without(gp.Statuses, st)
	} else {
		gp.Statuses = append(gp.Statuses, st)
	}
	return nil
}

func (g *Game) countStatus(st werewolf.Status) int {
	n := 0
	for _, p := range g.s.Players {
		if p.HasStatus(st) {
			n++
		}
	}
	return n
}

func without(sts []werewolf.Status, st werewolf.Status) []werewolf.Status {
	out := sts[:0]
	for _, s := range sts {
		if s != st {
			out = append(out, s)
		}
	}
	return out
}

// AdvancePhase moves day to night and night to day. The round counter
// ticks once per full cycle, on the night-to-day edge.
func (g *Game) AdvancePhase() {
	if g.s.Phase == werewolf.Day {
		g.s.Phase = werewolf.Night
		return
	}
	g.s.Phase = werewolf.Day
	g.s.Round++
}

// AppendEvent adds a timestamped line to the top of the event log.
// Whitespace-only text is rejected.
func (g *Game) AppendEvent(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyEvent
	}

	line := fmt.Sprintf("[%s] %s", g.now().Format("15:04"), text)
	g.s.Events = append([]string{line}, g.s.Events...)
	return nil
}

// UnassignedRoles computes which pool entries haven't been dealt yet, as a
// multiset difference: pool counts minus assigned role id counts, keeping
// pool order.
func (g *Game) UnassignedRoles() []werewolf.Role {
	assigned := make(map[werewolf.RoleID]int)
	for _, gp := range g.s.Players {
		if gp.Role != nil {
			assigned[gp.Role.ID]++
		}
	}

	var unassigned []werewolf.Role
	for _, r := range g.s.RolePool {
		if assigned[r.ID] > 0 {
			assigned[r.ID]--
			continue
		}
		unassigned = append(unassigned, r)
	}
	return unassigned
}

// Archive stamps the session as finished. Moving it into history and
// clearing the current slot is the store's job, a stamped session should
// never stay current.
func (g *Game) Archive(winner werewolf.Winner) {
	g.s.Status = werewolf.Finished
	g.s.EndTime = g.now()
	g.s.Winner = winner
}
