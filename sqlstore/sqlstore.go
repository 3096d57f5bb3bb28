// Package sqlstore persists the whole app state as a single keyed snapshot
// in a SQLite file. The snapshot is read once at startup and rewritten
// after every mutation. Writes are best effort, the roster isn't critical
// data and a crashed write just loses the latest change.
package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bcspragu/Werewolf/werewolf"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

const snapshotKey = "werewolf-manager"

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	key TEXT PRIMARY KEY,
	data BLOB NOT NULL
);`

// snapshot mirrors the persisted layout: players, groups, the current
// session, and finished games newest-first.
type snapshot struct {
	Players        []*werewolf.Player  `json:"players"`
	Groups         []*werewolf.Group   `json:"groups"`
	CurrentSession *werewolf.Session   `json:"current_session"`
	GameHistory    []*werewolf.Session `json:"game_history"`
}

// DB implements werewolf.DB on top of a SQLite file. SQLite doesn't like
// concurrent writers, so nothing holds the handle directly, every call is
// funneled through a single goroutine via dbChan. The in-memory snapshot
// is only touched from that goroutine too, which is all the locking we
// need.
type DB struct {
	dbChan   chan func(*sqlx.DB)
	doneChan chan struct{}
	snap     *snapshot
	logger   *zap.Logger
}

// New opens (or creates) the snapshot database at the given filename and
// loads the stored state.
func New(fn string, logger *zap.Logger) (*DB, error) {
	sdb, err := sqlx.Connect("sqlite3", fn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot db: %w", err)
	}

	if _, err := sdb.Exec(schema); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("failed to init snapshot schema: %w", err)
	}

	snap, err := load(sdb)
	if err != nil {
		sdb.Close()
		return nil, err
	}

	db := &DB{
		dbChan:   make(chan func(*sqlx.DB)),
		doneChan: make(chan struct{}),
		snap:     snap,
		logger:   logger,
	}
	go db.run(sdb)
	return db, nil
}

func load(sdb *sqlx.DB) (*snapshot, error) {
	var data []byte
	err := sdb.Get(&data, "SELECT data FROM snapshots WHERE key = ?", snapshotKey)
	if err == sql.ErrNoRows {
		return &snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// run owns the database handle and the snapshot until Close.
func (s *DB) run(sdb *sqlx.DB) {
	for {
		select {
		case dbFn := <-s.dbChan:
			dbFn(sdb)
		case <-s.doneChan:
			sdb.Close()
			return
		}
	}
}

func (s *DB) Close() error {
	close(s.doneChan)
	return nil
}

// do runs fn on the snapshot goroutine and waits for it.
func (s *DB) do(fn func(*sqlx.DB) error) error {
	errChan := make(chan error, 1)
	s.dbChan <- func(sdb *sqlx.DB) {
		errChan <- fn(sdb)
	}
	return <-errChan
}

// persist rewrites the snapshot row. Failures are logged and swallowed,
// the in-memory state stays authoritative for this process.
func (s *DB) persist(sdb *sqlx.DB) {
	data, err := json.Marshal(s.snap)
	if err != nil {
		s.logger.Warn("failed to encode snapshot", zap.Error(err))
		return
	}

	_, err = sdb.Exec(`INSERT INTO snapshots (key, data) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data`, snapshotKey, data)
	if err != nil {
		s.logger.Warn("failed to write snapshot", zap.Error(err))
	}
}

func (s *DB) NewPlayer(p *werewolf.Player) (werewolf.PlayerID, error) {
	pID := werewolf.PlayerID(werewolf.NewID())
	err := s.do(func(sdb *sqlx.DB) error {
		pc := p.Clone()
		pc.ID = pID
		s.snap.Players = append(s.snap.Players, pc)
		s.persist(sdb)
		return nil
	})
	return pID, err
}

func (s *DB) Player(pID werewolf.PlayerID) (*werewolf.Player, error) {
	var out *werewolf.Player
	err := s.do(func(*sqlx.DB) error {
		for _, p := range s.snap.Players {
			if p.ID == pID {
				out = p.Clone()
				return nil
			}
		}
		return werewolf.ErrPlayerNotFound
	})
	return out, err
}

func (s *DB) Players() ([]*werewolf.Player, error) {
	var out []*werewolf.Player
	err := s.do(func(*sqlx.DB) error {
		for _, p := range s.snap.Players {
			out = append(out, p.Clone())
		}
		return nil
	})
	return out, err
}

func (s *DB) UpdatePlayer(p *werewolf.Player) error {
	return s.do(func(sdb *sqlx.DB) error {
		for i, existing := range s.snap.Players {
			if existing.ID == p.ID {
				s.snap.Players[i] = p.Clone()
				s.persist(sdb)
				return nil
			}
		}
		return werewolf.ErrPlayerNotFound
	})
}

func (s *DB) DeletePlayer(pID werewolf.PlayerID) error {
	return s.do(func(sdb *sqlx.DB) error {
		idx := -1
		for i, p := range s.snap.Players {
			if p.ID == pID {
				idx = i
				break
			}
		}
		if idx == -1 {
			return werewolf.ErrPlayerNotFound
		}

		s.snap.Players = append(s.snap.Players[:idx], s.snap.Players[idx+1:]...)
		for _, g := range s.snap.Groups {
			kept := g.PlayerIDs[:0]
			for _, id := range g.PlayerIDs {
				if id != pID {
					kept = append(kept, id)
				}
			}
			g.PlayerIDs = kept
		}
		s.persist(sdb)
		return nil
	})
}

func (s *DB) NewGroup(g *werewolf.Group) (werewolf.GroupID, error) {
	gID := werewolf.GroupID(werewolf.NewID())
	err := s.do(func(sdb *sqlx.DB) error {
		gc := g.Clone()
		gc.ID = gID
		s.snap.Groups = append(s.snap.Groups, gc)
		s.persist(sdb)
		return nil
	})
	return gID, err
}

func (s *DB) Group(gID werewolf.GroupID) (*werewolf.Group, error) {
	var out *werewolf.Group
	err := s.do(func(*sqlx.DB) error {
		for _, g := range s.snap.Groups {
			if g.ID == gID {
				out = g.Clone()
				return nil
			}
		}
		return werewolf.ErrGroupNotFound
	})
	return out, err
}

func (s *DB) Groups() ([]*werewolf.Group, error) {
	var out []*werewolf.Group
	err := s.do(func(*sqlx.DB) error {
		for _, g := range s.snap.Groups {
			out = append(out, g.Clone())
		}
		return nil
	})
	return out, err
}

func (s *DB) UpdateGroup(g *werewolf.Group) error {
	return s.do(func(sdb *sqlx.DB) error {
		for i, existing := range s.snap.Groups {
			if existing.ID == g.ID {
				s.snap.Groups[i] = g.Clone()
				s.persist(sdb)
				return nil
			}
		}
		return werewolf.ErrGroupNotFound
	})
}

func (s *DB) DeleteGroup(gID werewolf.GroupID) error {
	return s.do(func(sdb *sqlx.DB) error {
		for i, g := range s.snap.Groups {
			if g.ID == gID {
				s.snap.Groups = append(s.snap.Groups[:i], s.snap.Groups[i+1:]...)
				s.persist(sdb)
				return nil
			}
		}
		return werewolf.ErrGroupNotFound
	})
}

func (s *DB) CurrentSession() (*werewolf.Session, error) {
	var out *werewolf.Session
	err := s.do(func(*sqlx.DB) error {
		if s.snap.CurrentSession == nil {
			return werewolf.ErrNoActiveSession
		}
		out = s.snap.CurrentSession.Clone()
		return nil
	})
	return out, err
}

func (s *DB) SetCurrentSession(sess *werewolf.Session) error {
	return s.do(func(sdb *sqlx.DB) error {
		s.snap.CurrentSession = sess.Clone()
		s.persist(sdb)
		return nil
	})
}

func (s *DB) ArchiveCurrent(sess *werewolf.Session) error {
	return s.do(func(sdb *sqlx.DB) error {
		if s.snap.CurrentSession == nil {
			return werewolf.ErrNoActiveSession
		}
		s.snap.GameHistory = append([]*werewolf.Session{sess.Clone()}, s.snap.GameHistory...)
		s.snap.CurrentSession = nil
		s.persist(sdb)
		return nil
	})
}

func (s *DB) History() ([]*werewolf.Session, error) {
	var out []*werewolf.Session
	err := s.do(func(*sqlx.DB) error {
		for _, sess := range s.snap.GameHistory {
			out = append(out, sess.Clone())
		}
		return nil
	})
	return out, err
}
