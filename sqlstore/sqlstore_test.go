package sqlstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bcspragu/Werewolf/roles"
	"github.com/bcspragu/Werewolf/session"
	"github.com/bcspragu/Werewolf/werewolf"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

func TestSnapshotRoundTrip(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "snapshot.db")

	db, err := New(fn, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	var players []*werewolf.Player
	for _, name := range []string{"Ana", "Bert", "Cleo", "Dmitri"} {
		pID, err := db.NewPlayer(&werewolf.Player{Name: name})
		if err != nil {
			t.Fatalf("failed to create player %q: %v", name, err)
		}
		p, err := db.Player(pID)
		if err != nil {
			t.Fatalf("failed to load player %q: %v", name, err)
		}
		players = append(players, p)
	}

	gID, err := db.NewGroup(&werewolf.Group{
		Name:      "Friday regulars",
		PlayerIDs: []werewolf.PlayerID{players[0].ID, players[1].ID},
	})
	if err != nil {
		t.Fatalf("failed to create group: %v", err)
	}

	g, err := session.New("game-one", players, roles.Suggest(4), time.Now)
	if err != nil {
		t.Fatalf("failed to start game: %v", err)
	}
	if err := db.SetCurrentSession(g.Session()); err != nil {
		t.Fatalf("failed to store session: %v", err)
	}

	if err := db.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	// Everything should come back after a reopen.
	db, err = New(fn, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer db.Close()

	gotPlayers, err := db.Players()
	if err != nil {
		t.Fatalf("failed to load players: %v", err)
	}
	if diff := cmp.Diff(players, gotPlayers); diff != "" {
		t.Errorf("unexpected players after reload (-want +got)\n%s", diff)
	}

	gotGroup, err := db.Group(gID)
	if err != nil {
		t.Fatalf("failed to load group: %v", err)
	}
	if gotGroup.Name != "Friday regulars" || len(gotGroup.PlayerIDs) != 2 {
		t.Errorf("unexpected group after reload: %+v", gotGroup)
	}

	sess, err := db.CurrentSession()
	if err != nil {
		t.Fatalf("failed to load current session: %v", err)
	}
	if sess.ID != "game-one" || sess.Status != werewolf.Playing {
		t.Errorf("unexpected session after reload: id %q status %q", sess.ID, sess.Status)
	}
}

func TestArchiveCurrent(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "snapshot.db")

	db, err := New(fn, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	if err := db.ArchiveCurrent(&werewolf.Session{}); err != werewolf.ErrNoActiveSession {
		t.Errorf("archiving with no session returned %v, want ErrNoActiveSession", err)
	}

	players := []*werewolf.Player{
		{ID: "a", Name: "Ana"}, {ID: "b", Name: "Bert"},
		{ID: "c", Name: "Cleo"}, {ID: "d", Name: "Dmitri"},
	}
	g, err := session.New("game-one", players, roles.Suggest(4), time.Now)
	if err != nil {
		t.Fatalf("failed to start game: %v", err)
	}
	if err := db.SetCurrentSession(g.Session()); err != nil {
		t.Fatalf("failed to store session: %v", err)
	}

	g.Archive(werewolf.WerewolvesWin)
	if err := db.ArchiveCurrent(g.Session()); err != nil {
		t.Fatalf("failed to archive session: %v", err)
	}

	if _, err := db.CurrentSession(); err != werewolf.ErrNoActiveSession {
		t.Errorf("current session after archive returned %v, want ErrNoActiveSession", err)
	}

	hist, err := db.History()
	if err != nil {
		t.Fatalf("failed to load history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history has %d entries, want 1", len(hist))
	}
	if hist[0].Winner != werewolf.WerewolvesWin || hist[0].Status != werewolf.Finished {
		t.Errorf("archived session has winner %q status %q", hist[0].Winner, hist[0].Status)
	}
	if hist[0].EndTime.Before(hist[0].StartTime) {
		t.Errorf("end time %v is before start time %v", hist[0].EndTime, hist[0].StartTime)
	}
}
