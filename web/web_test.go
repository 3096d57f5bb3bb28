package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bcspragu/Werewolf/memstore"
	"github.com/bcspragu/Werewolf/werewolf"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

func TestBasicallyEverything(t *testing.T) {
	// This is a hodge-podge test that runs a whole game night end-to-end,
	// because that's how the tool actually gets used: set up a roster,
	// deal roles, kill people, archive.
	env := setup(t)

	env.claimModerator(t)

	for i := 0; i < 5; i++ {
		env.createPlayer(t, fmt.Sprintf("Test%d", i))
	}

	gotPlayers := env.players(t)
	if len(gotPlayers) != 5 {
		t.Fatalf("roster has %d players, want 5", len(gotPlayers))
	}
	wantPlayer := &werewolf.Player{ID: "player_3", Name: "Test3"}
	if diff := cmp.Diff(wantPlayer, gotPlayers[3]); diff != "" {
		t.Errorf("unexpected player (-want +got)\n%s", diff)
	}

	// Pool for five players: werewolf, seer, bodyguard, and two villagers.
	suggestion := env.suggestRoles(t, 5)
	if got := len(suggestion.Roles); got != 5 {
		t.Fatalf("suggested pool has %d roles, want 5", got)
	}
	if suggestion.Balance != 6 {
		t.Errorf("suggested balance = %d, want 6", suggestion.Balance)
	}

	var roleIDs []string
	for _, r := range suggestion.Roles {
		roleIDs = append(roleIDs, string(r.ID))
	}

	sess := env.startGame(t, []string{"player_0", "player_1", "player_2", "player_3", "player_4"}, roleIDs)
	if sess.Status != werewolf.Playing || sess.Phase != werewolf.Night || sess.Round != 1 {
		t.Errorf("new game is (%s, %s, round %d), want (PLAYING, NIGHT, round 1)", sess.Status, sess.Phase, sess.Round)
	}

	// Deal the seer to player 1 and check it leaves the pool.
	env.assignRole(t, "player_1", "SEER")
	var unassigned []werewolf.RoleID
	for _, r := range env.unassignedRoles(t) {
		unassigned = append(unassigned, r.ID)
	}
	wantUnassigned := []werewolf.RoleID{werewolf.Werewolf, werewolf.Bodyguard, werewolf.Villager, werewolf.Villager}
	if diff := cmp.Diff(wantUnassigned, unassigned); diff != "" {
		t.Errorf("unexpected unassigned pool (-want +got)\n%s", diff)
	}

	// Protection moves, it doesn't accumulate.
	env.toggleStatus(t, "player_0", "PROTECTED")
	sess = env.toggleStatus(t, "player_2", "PROTECTED")
	protected := 0
	for _, gp := range sess.Players {
		if gp.HasStatus(werewolf.Protected) {
			protected++
		}
	}
	if protected != 1 {
		t.Errorf("%d players protected, want exactly 1", protected)
	}

	sess = env.toggleAlive(t, "player_4")
	if sess.Player("player_4").Alive {
		t.Error("player 4 still alive after toggle")
	}

	sess = env.appendEvent(t, "Werewolves took Test4")
	wantEvents := []string{"[21:30] Werewolves took Test4"}
	if diff := cmp.Diff(wantEvents, sess.Events); diff != "" {
		t.Errorf("unexpected event log (-want +got)\n%s", diff)
	}

	sess = env.advancePhase(t)
	if sess.Phase != werewolf.Day || sess.Round != 2 {
		t.Errorf("after advance, game is (%s, round %d), want (DAY, round 2)", sess.Phase, sess.Round)
	}

	archived := env.archive(t, "WEREWOLVES")
	if archived.Status != werewolf.Finished || archived.Winner != werewolf.WerewolvesWin {
		t.Errorf("archived game is (%s, %q), want (FINISHED, WEREWOLVES)", archived.Status, archived.Winner)
	}

	// The current slot is empty now, history holds the game.
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/game", nil)
	env.srv.handle(env.srv.serveGame)(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /api/game after archive = %d, want 404", w.Code)
	}

	hist := env.history(t)
	if len(hist) != 1 {
		t.Fatalf("history has %d games, want 1", len(hist))
	}
	if hist[0].ID != archived.ID {
		t.Errorf("history head is %q, want %q", hist[0].ID, archived.ID)
	}
}

func TestAuthRequired(t *testing.T) {
	env := setup(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/player", toBody(t, struct {
		Name string `json:"name"`
	}{"Interloper"}))

	env.srv.handle(env.srv.requireAuth(env.srv.serveCreatePlayer))(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated create player = %d, want 401", w.Code)
	}
}

func TestCreatePlayer_EmptyName(t *testing.T) {
	env := setup(t)
	env.claimModerator(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/player", toBody(t, struct {
		Name string `json:"name"`
	}{"   "}))
	env.addAuth(r)

	env.srv.handle(env.srv.requireAuth(env.srv.serveCreatePlayer))(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank player name = %d, want 400", w.Code)
	}
}

func TestStartGame_TooFewPlayers(t *testing.T) {
	env := setup(t)
	env.claimModerator(t)

	for i := 0; i < 3; i++ {
		env.createPlayer(t, fmt.Sprintf("Test%d", i))
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/game", toBody(t, struct {
		PlayerIDs []string `json:"player_ids"`
		RoleIDs   []string `json:"role_ids"`
	}{
		[]string{"player_0", "player_1", "player_2"},
		[]string{"WEREWOLF", "SEER", "VILLAGER"},
	}))
	env.addAuth(r)

	env.srv.handle(env.srv.requireAuth(env.srv.serveStartGame))(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("three-player game = %d, want 400", w.Code)
	}
}

type testEnv struct {
	db   *memstore.DB
	srv  *Srv
	auth string
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	db := memstore.New()
	srv := New(db, rand.New(rand.NewSource(0)), setupCookies(), zap.NewNop())
	srv.now = func() time.Time {
		return time.Date(2024, 3, 1, 21, 30, 0, 0, time.UTC)
	}

	return &testEnv{db: db, srv: srv}
}

func setupCookies() *securecookie.SecureCookie {
	return securecookie.New(
		[]byte{
			1, 2, 3, 4, 5, 6, 7, 8,
			9, 10, 11, 12, 13, 14, 15, 16,
			17, 18, 19, 20, 21, 22, 23, 24,
			25, 26, 27, 28, 29, 30, 31, 32,
		},
		[]byte{
			33, 34, 35, 36, 37, 38, 39, 40,
			41, 42, 43, 44, 45, 46, 47, 48,
			49, 50, 51, 52, 53, 54, 55, 56,
			57, 58, 59, 60, 61, 62, 63, 64,
		})
}

func (env *testEnv) claimModerator(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/moderator", nil)

	env.srv.handle(env.srv.serveClaimModerator)(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("failed to claim moderator: %d %s", w.Code, w.Body.String())
	}

	auth := w.Header().Get("Set-Cookie")
	if !strings.HasPrefix(auth, "Authorization=") {
		t.Fatalf("malformed authorization cookie %q", auth)
	}
	env.auth = strings.TrimPrefix(auth, "Authorization=")
}

func (env *testEnv) addAuth(r *http.Request) {
	r.AddCookie(&http.Cookie{Name: "Authorization", Value: env.auth})
}

func (env *testEnv) createPlayer(t *testing.T, name string) *werewolf.Player {
	req := struct {
		Name string `json:"name"`
	}{name}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/player", toBody(t, req))
	env.addAuth(r)

	env.srv.handle(env.srv.requireAuth(env.srv.serveCreatePlayer))(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("failed to create player %q: %d %s", name, w.Code, w.Body.String())
	}

	var p werewolf.Player
	fromBody(t, w, &p)
	return &p
}

func (env *testEnv) players(t *testing.T) []*werewolf.Player {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/players", nil)

	env.srv.handle(env.srv.servePlayers)(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("failed to list players: %d %s", w.Code, w.Body.String())
	}

	var ps []*werewolf.Player
	fromBody(t, w, &ps)
	return ps
}

type suggestion struct {
	Roles   []werewolf.Role `json:"roles"`
	Balance int             `json:"balance"`
}

func (env *testEnv) suggestRoles(t *testing.T, n int) *suggestion {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/roles/suggest?players=%d", n), nil)

	env.srv.handle(env.srv.serveSuggestRoles)(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("failed to suggest roles: %d %s", w.Code, w.Body.String())
	}

	var s suggestion
	fromBody(t, w, &s)
	return &s
}

func (env *testEnv) startGame(t *testing.T, playerIDs, roleIDs []string) *werewolf.Session {
	req := struct {
		PlayerIDs []string `json:"player_ids"`
		RoleIDs   []string `json:"role_ids"`
	}{playerIDs, roleIDs}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/game", toBody(t, req))
	env.addAuth(r)

	env.srv.handle(env.srv.requireAuth(env.srv.serveStartGame))(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("failed to start game: %d %s", w.Code, w.Body.String())
	}

	var s werewolf.Session
	fromBody(t, w, &s)
	return &s
}

func (env *testEnv) sessionPost(t *testing.T, path string, handler handlerFunc, body interface{}) *werewolf.Session {
	t.Helper()

	w := httptest.NewRecorder()
	var rdr io.Reader
	if body != nil {
		rdr = toBody(t, body)
	}
	r := httptest.NewRequest(http.MethodPost, path, rdr)
	env.addAuth(r)

	env.srv.handle(env.srv.requireAuth(handler))(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("POST %s failed: %d %s", path, w.Code, w.Body.String())
	}

	var s werewolf.Session
	fromBody(t, w, &s)
	return &s
}

func (env *testEnv) assignRole(t *testing.T, playerID, roleID string) *werewolf.Session {
	return env.sessionPost(t, "/api/game/assignRole", env.srv.serveAssignRole, struct {
		PlayerID string `json:"player_id"`
		RoleID   string `json:"role_id"`
	}{playerID, roleID})
}

func (env *testEnv) toggleStatus(t *testing.T, playerID, status string) *werewolf.Session {
	return env.sessionPost(t, "/api/game/toggleStatus", env.srv.serveToggleStatus, struct {
		PlayerID string `json:"player_id"`
		Status   string `json:"status"`
	}{playerID, status})
}

func (env *testEnv) toggleAlive(t *testing.T, playerID string) *werewolf.Session {
	return env.sessionPost(t, "/api/game/toggleAlive", env.srv.serveToggleAlive, struct {
		PlayerID string `json:"player_id"`
	}{playerID})
}

func (env *testEnv) appendEvent(t *testing.T, text string) *werewolf.Session {
	return env.sessionPost(t, "/api/game/event", env.srv.serveAppendEvent, struct {
		Text string `json:"text"`
	}{text})
}

func (env *testEnv) advancePhase(t *testing.T) *werewolf.Session {
	return env.sessionPost(t, "/api/game/advancePhase", env.srv.serveAdvancePhase, struct{}{})
}

func (env *testEnv) archive(t *testing.T, winner string) *werewolf.Session {
	return env.sessionPost(t, "/api/game/archive", env.srv.serveArchive, struct {
		Winner string `json:"winner"`
	}{winner})
}

func (env *testEnv) unassignedRoles(t *testing.T) []werewolf.Role {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/game/unassignedRoles", nil)

	env.srv.handle(env.srv.serveUnassignedRoles)(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("failed to get unassigned roles: %d %s", w.Code, w.Body.String())
	}

	var rs []werewolf.Role
	fromBody(t, w, &rs)
	return rs
}

func (env *testEnv) history(t *testing.T) []*werewolf.Session {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/history", nil)

	env.srv.handle(env.srv.serveHistory)(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("failed to get history: %d %s", w.Code, w.Body.String())
	}

	var hist []*werewolf.Session
	fromBody(t, w, &hist)
	return hist
}

func toBody(t *testing.T, body interface{}) io.Reader {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	return &buf
}

func fromBody(t *testing.T, w *httptest.ResponseRecorder, resp interface{}) {
	if err := json.NewDecoder(w.Body).Decode(resp); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}
