package werewolf

import (
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPlayerNotFound  = errors.New("werewolf: player not found")
	ErrGroupNotFound   = errors.New("werewolf: group not found")
	ErrNoActiveSession = errors.New("werewolf: no session in progress")
)

type PlayerID string
type GroupID string
type SessionID string

// RoleID enumerates every role the moderator can deal into a game. The set
// is closed, new roles mean a new release.
type RoleID string

const (
	Werewolf  = RoleID("WEREWOLF")
	Villager  = RoleID("VILLAGER")
	Seer      = RoleID("SEER")
	Bodyguard = RoleID("BODYGUARD")
	Hunter    = RoleID("HUNTER")
	Cupid     = RoleID("CUPID")
	Witch     = RoleID("WITCH")
	Lycan     = RoleID("LYCAN")
	Minion    = RoleID("MINION")
	Zombie    = RoleID("ZOMBIE")
)

// Role is a static role definition. The catalog in the roles package is the
// only place these are created, nothing mutates them at runtime.
type Role struct {
	ID          RoleID `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	// BalanceScore is positive for village-aligned roles, negative for
	// wolf-aligned or chaotic ones.
	BalanceScore int `json:"balance_score"`
	// MaxCount caps simultaneous copies in one game. Zero means unlimited.
	MaxCount int `json:"max_count,omitempty"`
}

// Player is a roster entry. It outlives any single game.
type Player struct {
	ID   PlayerID `json:"id"`
	Name string   `json:"name"`
	// Avatar is an opaque reference, usually a URL or data URI. The server
	// never looks inside it.
	Avatar string `json:"avatar,omitempty"`
}

func (p *Player) Clone() *Player {
	pc := *p
	return &pc
}

// Group is a named subset of the roster for quick selection during setup.
type Group struct {
	ID        GroupID    `json:"id"`
	Name      string     `json:"name"`
	PlayerIDs []PlayerID `json:"player_ids"`
}

func (g *Group) Clone() *Group {
	gc := *g
	gc.PlayerIDs = append([]PlayerID(nil), g.PlayerIDs...)
	return &gc
}

// Status is a moderator-visible tag on a player in a running game.
type Status string

const (
	Protected = Status("PROTECTED")
	Linked    = Status("LINKED")
	Targeted  = Status("TARGETED")
	Poisoned  = Status("POISONED")
	Silenced  = Status("SILENCED")
)

// GamePlayer is a roster player enrolled in one game.
type GamePlayer struct {
	Player
	// Role is nil until the moderator deals one out on night one.
	Role     *Role    `json:"role"`
	Alive    bool     `json:"alive"`
	Statuses []Status `json:"statuses"`
}

func (gp *GamePlayer) Clone() *GamePlayer {
	gpc := *gp
	if gp.Role != nil {
		r := *gp.Role
		gpc.Role = &r
	}
	gpc.Statuses = append([]Status(nil), gp.Statuses...)
	return &gpc
}

// HasStatus reports whether the given tag is currently on the player.
func (gp *GamePlayer) HasStatus(st Status) bool {
	for _, s := range gp.Statuses {
		if s == st {
			return true
		}
	}
	return false
}

type SessionStatus string

const (
	// Setup only exists between choosing players and dealing the pool. The
	// server creates sessions directly in Playing.
	Setup    = SessionStatus("SETUP")
	Playing  = SessionStatus("PLAYING")
	Finished = SessionStatus("FINISHED")
)

type Phase string

const (
	Day   = Phase("DAY")
	Night = Phase("NIGHT")
)

type Winner string

const (
	NoWinner      = Winner("")
	VillagersWin  = Winner("VILLAGERS")
	WerewolvesWin = Winner("WEREWOLVES")
	OtherWin      = Winner("OTHER")
)

// Session is the aggregate for one game night. Exactly one session is
// current at a time, everything else lives in history.
type Session struct {
	ID        SessionID `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`

	Players []*GamePlayer `json:"players"`
	// RolePool is the multiset of roles picked at setup. Its length always
	// equals the player count.
	RolePool []Role `json:"role_pool"`

	Status SessionStatus `json:"status"`
	Phase  Phase         `json:"phase"`
	Round  int           `json:"round"`
	// Winner is only set once Status is Finished.
	Winner Winner `json:"winner,omitempty"`

	// Events is the moderator's log, newest first.
	Events []string `json:"events"`
}

func (s *Session) Clone() *Session {
	sc := *s
	sc.Players = make([]*GamePlayer, len(s.Players))
	for i, gp := range s.Players {
		sc.Players[i] = gp.Clone()
	}
	sc.RolePool = append([]Role(nil), s.RolePool...)
	sc.Events = append([]string(nil), s.Events...)
	return &sc
}

// Player finds the enrolled player with the given id, or nil.
func (s *Session) Player(pID PlayerID) *GamePlayer {
	for _, gp := range s.Players {
		if gp.ID == pID {
			return gp
		}
	}
	return nil
}

// DB is the storage API for the roster, groups, the current session, and
// completed games. Implementations hand out copies, callers never share
// memory with the store.
type DB interface {
	NewPlayer(*Player) (PlayerID, error)
	Player(PlayerID) (*Player, error)
	Players() ([]*Player, error)
	UpdatePlayer(*Player) error
	// DeletePlayer also removes the player from every group.
	DeletePlayer(PlayerID) error

	NewGroup(*Group) (GroupID, error)
	Group(GroupID) (*Group, error)
	Groups() ([]*Group, error)
	UpdateGroup(*Group) error
	DeleteGroup(GroupID) error

	CurrentSession() (*Session, error)
	SetCurrentSession(*Session) error
	// ArchiveCurrent prepends the finished session to history and clears
	// the current one.
	ArchiveCurrent(*Session) error
	History() ([]*Session, error)
}

// NewID returns a fresh unique id for roster entities.
func NewID() string {
	return uuid.NewString()
}

var letters = []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

// RandomSessionID generates a short session identifier from the given
// source. Session ids only need to be unique within one moderator's
// history, so 16 characters is plenty.
func RandomSessionID(r *rand.Rand) SessionID {
	b := make([]byte, 16)
	for i := range b {
		b[i] = letters[r.Intn(len(letters))]
	}
	return SessionID(b)
}
