// Package web is the HTTP surface the moderator's UI talks to. Handlers
// return errors and a small wrapper maps them onto status codes, so the
// route table stays readable.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bcspragu/Werewolf/hub"
	"github.com/bcspragu/Werewolf/roles"
	"github.com/bcspragu/Werewolf/session"
	"github.com/bcspragu/Werewolf/timer"
	"github.com/bcspragu/Werewolf/werewolf"
	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Srv struct {
	sc       *securecookie.SecureCookie
	h        *hub.Hub
	mux      *mux.Router
	db       werewolf.DB
	r        *rand.Rand
	logger   *zap.Logger
	now      func() time.Time
	tm       *timer.Timer
	upgrader websocket.Upgrader
}

// New returns an initialized server.
func New(db werewolf.DB, r *rand.Rand, sc *securecookie.SecureCookie, logger *zap.Logger) *Srv {
	s := &Srv{
		sc:     sc,
		h:      hub.New(),
		db:     db,
		r:      r,
		logger: logger,
		now:    time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.tm = timer.New(s.timerExpired)
	s.mux = s.initMux()

	return s
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (s *Srv) initMux() *mux.Router {
	m := mux.NewRouter()
	m.Use(requestLogger(s.logger))

	// Moderator auth.
	m.HandleFunc("/api/moderator", s.handle(s.serveClaimModerator)).Methods("POST")

	// Roster.
	m.HandleFunc("/api/player", s.handle(s.requireAuth(s.serveCreatePlayer))).Methods("POST")
	m.HandleFunc("/api/players", s.handle(s.servePlayers)).Methods("GET")
	m.HandleFunc("/api/player/{id}", s.handle(s.requireAuth(s.serveUpdatePlayer))).Methods("PUT")
	m.HandleFunc("/api/player/{id}", s.handle(s.requireAuth(s.serveDeletePlayer))).Methods("DELETE")

	// Groups.
	m.HandleFunc("/api/group", s.handle(s.requireAuth(s.serveCreateGroup))).Methods("POST")
	m.HandleFunc("/api/groups", s.handle(s.serveGroups)).Methods("GET")
	m.HandleFunc("/api/group/{id}", s.handle(s.requireAuth(s.serveUpdateGroup))).Methods("PUT")
	m.HandleFunc("/api/group/{id}", s.handle(s.requireAuth(s.serveDeleteGroup))).Methods("DELETE")

	// Role catalog and setup helpers.
	m.HandleFunc("/api/roles", s.handle(s.serveRoles)).Methods("GET")
	m.HandleFunc("/api/roles/suggest", s.handle(s.serveSuggestRoles)).Methods("GET")

	// The running game.
	m.HandleFunc("/api/game", s.handle(s.requireAuth(s.serveStartGame))).Methods("POST")
	m.HandleFunc("/api/game", s.handle(s.serveGame)).Methods("GET")
	m.HandleFunc("/api/game/assignRole", s.handle(s.requireAuth(s.serveAssignRole))).Methods("POST")
	m.HandleFunc("/api/game/unassignRole", s.handle(s.requireAuth(s.serveUnassignRole))).Methods("POST")
	m.HandleFunc("/api/game/toggleAlive", s.handle(s.requireAuth(s.serveToggleAlive))).Methods("POST")
	m.HandleFunc("/api/game/toggleStatus", s.handle(s.requireAuth(s.serveToggleStatus))).Methods("POST")
	m.HandleFunc("/api/game/advancePhase", s.handle(s.requireAuth(s.serveAdvancePhase))).Methods("POST")
	m.HandleFunc("/api/game/event", s.handle(s.requireAuth(s.serveAppendEvent))).Methods("POST")
	m.HandleFunc("/api/game/archive", s.handle(s.requireAuth(s.serveArchive))).Methods("POST")
	m.HandleFunc("/api/game/unassignedRoles", s.handle(s.serveUnassignedRoles)).Methods("GET")
	m.HandleFunc("/api/game/nightOrder", s.handle(s.serveNightOrder)).Methods("GET")
	m.HandleFunc("/api/history", s.handle(s.serveHistory)).Methods("GET")

	// Discussion timer.
	m.HandleFunc("/api/timer", s.handle(s.serveTimer)).Methods("GET")
	m.HandleFunc("/api/timer/start", s.handle(s.requireAuth(s.serveTimerStart))).Methods("POST")
	m.HandleFunc("/api/timer/pause", s.handle(s.requireAuth(s.serveTimerPause))).Methods("POST")
	m.HandleFunc("/api/timer/resume", s.handle(s.requireAuth(s.serveTimerResume))).Methods("POST")
	m.HandleFunc("/api/timer/reset", s.handle(s.requireAuth(s.serveTimerReset))).Methods("POST")

	// WebSocket handler for companion displays.
	m.HandleFunc("/api/game/ws", s.handle(s.serveData)).Methods("GET")

	return m
}

func (s *Srv) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// httpError pairs an error with the status code it should produce.
type httpError struct {
	code int
	err  error
}

func (h httpError) Error() string {
	return h.err.Error()
}

func badRequest(format string, args ...interface{}) error {
	return httpError{code: http.StatusBadRequest, err: fmt.Errorf(format, args...)}
}

// handle adapts our error-returning handlers to net/http, mapping domain
// errors onto status codes. Not-found conditions are benign no-ops for the
// UI, it just re-renders from the latest snapshot.
func (s *Srv) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		code := http.StatusInternalServerError
		var hErr httpError
		switch {
		case errors.As(err, &hErr):
			code = hErr.code
		case errors.Is(err, werewolf.ErrPlayerNotFound),
			errors.Is(err, werewolf.ErrGroupNotFound),
			errors.Is(err, werewolf.ErrNoActiveSession):
			code = http.StatusNotFound
		case errors.Is(err, session.ErrEmptyEvent),
			errors.Is(err, session.ErrTooFewPlayers),
			errors.Is(err, session.ErrPoolSizeMismatch):
			code = http.StatusBadRequest
		}

		if code == http.StatusInternalServerError {
			s.logger.Error("handler failed", zap.String("path", r.URL.Path), zap.Error(err))
		}
		http.Error(w, err.Error(), code)
	}
}

// requestLogger logs every request with its latency.
func requestLogger(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("latency", time.Since(start)),
			)
		})
	}
}

func (s *Srv) serveClaimModerator(w http.ResponseWriter, r *http.Request) error {
	token := make([]byte, 32)
	for i := range token {
		token[i] = byte(s.r.Intn(256))
	}

	encoded, err := s.sc.Encode("auth", token)
	if err != nil {
		return fmt.Errorf("failed to encode auth cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:  "Authorization",
		Value: encoded,
	})

	return jsonResp(w, struct {
		Success bool `json:"success"`
	}{true})
}

// requireAuth rejects requests without a valid moderator cookie. There's no
// user database, any device that claimed a cookie from this server counts.
func (s *Srv) requireAuth(fn handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		c, err := r.Cookie("Authorization")
		if err == http.ErrNoCookie {
			return httpError{code: http.StatusUnauthorized, err: errors.New("not a moderator")}
		}
		if err != nil {
			return err
		}

		var token []byte
		if err := s.sc.Decode("auth", c.Value, &token); err != nil {
			// A stale or tampered cookie reads the same as no cookie.
			return httpError{code: http.StatusUnauthorized, err: errors.New("not a moderator")}
		}

		return fn(w, r)
	}
}

func (s *Srv) serveCreatePlayer(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("failed to decode request: %v", err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return badRequest("no name given")
	}

	id, err := s.db.NewPlayer(&werewolf.Player{Name: name, Avatar: req.Avatar})
	if err != nil {
		return err
	}

	p, err := s.db.Player(id)
	if err != nil {
		return err
	}
	return jsonResp(w, p)
}

func (s *Srv) servePlayers(w http.ResponseWriter, r *http.Request) error {
	ps, err := s.db.Players()
	if err != nil {
		return err
	}
	return jsonResp(w, ps)
}

func (s *Srv) serveUpdatePlayer(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("failed to decode request: %v", err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return badRequest("no name given")
	}

	p := &werewolf.Player{
		ID:     werewolf.PlayerID(mux.Vars(r)["id"]),
		Name:   name,
		Avatar: req.Avatar,
	}
	if err := s.db.UpdatePlayer(p); err != nil {
		return err
	}
	return jsonResp(w, p)
}

func (s *Srv) serveDeletePlayer(w http.ResponseWriter, r *http.Request) error {
	if err := s.db.DeletePlayer(werewolf.PlayerID(mux.Vars(r)["id"])); err != nil {
		return err
	}
	return jsonResp(w, struct {
		Success bool `json:"success"`
	}{true})
}

func (s *Srv) serveCreateGroup(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Name      string   `json:"name"`
		PlayerIDs []string `json:"player_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("failed to decode request: %v", err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return badRequest("no name given")
	}

	id, err := s.db.NewGroup(&werewolf.Group{Name: name, PlayerIDs: toPlayerIDs(req.PlayerIDs)})
	if err != nil {
		return err
	}

	g, err := s.db.Group(id)
	if err != nil {
		return err
	}
	return jsonResp(w, g)
}

func (s *Srv) serveGroups(w http.ResponseWriter, r *http.Request) error {
	gs, err := s.db.Groups()
	if err != nil {
		return err
	}
	return jsonResp(w, gs)
}

func (s *Srv) serveUpdateGroup(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Name      string   `json:"name"`
		PlayerIDs []string `json:"player_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("failed to decode request: %v", err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return badRequest("no name given")
	}

	g := &werewolf.Group{
		ID:        werewolf.GroupID(mux.Vars(r)["id"]),
		Name:      name,
		PlayerIDs: toPlayerIDs(req.PlayerIDs),
	}
	if err := s.db.UpdateGroup(g); err != nil {
		return err
	}
	return jsonResp(w, g)
}

func (s *Srv) serveDeleteGroup(w http.ResponseWriter, r *http.Request) error {
	if err := s.db.DeleteGroup(werewolf.GroupID(mux.Vars(r)["id"])); err != nil {
		return err
	}
	return jsonResp(w, struct {
		Success bool `json:"success"`
	}{true})
}

func (s *Srv) serveRoles(w http.ResponseWriter, r *http.Request) error {
	return jsonResp(w, roles.Catalog)
}

func (s *Srv) serveSuggestRoles(w http.ResponseWriter, r *http.Request) error {
	n, err := strconv.Atoi(r.URL.Query().Get("players"))
	if err != nil {
		return badRequest("bad player count: %v", err)
	}
	if n < session.MinPlayers {
		return badRequest("can't suggest a pool for %d players, need at least %d", n, session.MinPlayers)
	}

	pool := roles.Suggest(n)
	return jsonResp(w, struct {
		Roles   []werewolf.Role `json:"roles"`
		Balance int             `json:"balance"`
	}{pool, roles.Balance(pool)})
}

func (s *Srv) serveStartGame(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		PlayerIDs []string `json:"player_ids"`
		RoleIDs   []string `json:"role_ids"`
		// Shuffled pools get dealt to players in random order instead of
		// picked by hand on night one.
		Shuffle bool `json:"shuffle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("failed to decode request: %v", err)
	}

	if cur, err := s.db.CurrentSession(); err == nil {
		return badRequest("game %q is still in progress, archive it first", cur.ID)
	}

	players := make([]*werewolf.Player, 0, len(req.PlayerIDs))
	for _, id := range req.PlayerIDs {
		p, err := s.db.Player(werewolf.PlayerID(id))
		if err != nil {
			return err
		}
		players = append(players, p)
	}

	pool := make([]werewolf.Role, 0, len(req.RoleIDs))
	for _, id := range req.RoleIDs {
		role, ok := roles.Catalog[werewolf.RoleID(id)]
		if !ok {
			return badRequest("unknown role %q", id)
		}
		pool = append(pool, role)
	}
	if req.Shuffle {
		pool = roles.Shuffle(pool, s.r)
	}

	g, err := session.New(werewolf.RandomSessionID(s.r), players, pool, s.now)
	if err != nil {
		return err
	}

	if err := s.db.SetCurrentSession(g.Session()); err != nil {
		return err
	}
	return jsonResp(w, g.Session())
}

func (s *Srv) serveGame(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.db.CurrentSession()
	if err != nil {
		return err
	}
	return jsonResp(w, sess)
}

// updateGame loads the current session, applies fn, stores the result, and
// broadcasts the new snapshot to any watching displays.
func (s *Srv) updateGame(w http.ResponseWriter, fn func(*session.Game) error) error {
	sess, err := s.db.CurrentSession()
	if err != nil {
		return err
	}

	g := session.ForSession(sess, s.now)
	if err := fn(g); err != nil {
		return err
	}

	if err := s.db.SetCurrentSession(g.Session()); err != nil {
		return err
	}

	if err := s.h.ToSession(sess.ID, &SessionUpdate{Session: g.Session()}); err != nil {
		s.logger.Warn("failed to broadcast session update", zap.Error(err))
	}
	return jsonResp(w, g.Session())
}

func (s *Srv) serveAssignRole(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		PlayerID string `json:"player_id"`
		RoleID   string `json:"role_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("failed to decode request: %v", err)
	}

	role, ok := roles.Catalog[werewolf.RoleID(req.RoleID)]
	if !ok {
		return badRequest("unknown role %q", req.RoleID)
	}

	return s.updateGame(w, func(g *session.Game) error {
		return g.AssignRole(werewolf.PlayerID(req.PlayerID), role)
	})
}

func (s *Srv) serveUnassignRole(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		PlayerID string `json:"player_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("failed to decode request: %v", err)
	}

	return s.updateGame(w, func(g *session.Game) error {
		return g.UnassignRole(werewolf.PlayerID(req.PlayerID))
	})
}

func (s *Srv) serveToggleAlive(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		PlayerID string `json:"player_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("failed to decode request: %v", err)
	}

	return s.updateGame(w, func(g *session.Game) error {
		return g.ToggleAlive(werewolf.PlayerID(req.PlayerID))
	})
}

var validStatuses = map[werewolf.Status]bool{
	werewolf.Protected: true,
	werewolf.Linked:    true,
	werewolf.Targeted:  true,
	werewolf.Poisoned:  true,
	werewolf.Silenced:  true,
}

func (s *Srv) serveToggleStatus(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		PlayerID string `json:"player_id"`
		Status   string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("failed to decode request: %v", err)
	}

	st := werewolf.Status(req.Status)
	if !validStatuses[st] {
		return badRequest("unknown status %q", req.Status)
	}

	return s.updateGame(w, func(g *session.Game) error {
		return g.ToggleStatus(werewolf.PlayerID(req.PlayerID), st)
	})
}

func (s *Srv) serveAdvancePhase(w http.ResponseWriter, r *http.Request) error {
	return s.updateGame(w, func(g *session.Game) error {
		g.AdvancePhase()
		return nil
	})
}

func (s *Srv) serveAppendEvent(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("failed to decode request: %v", err)
	}

	return s.updateGame(w, func(g *session.Game) error {
		return g.AppendEvent(req.Text)
	})
}

var validWinners = map[werewolf.Winner]bool{
	werewolf.VillagersWin:  true,
	werewolf.WerewolvesWin: true,
	werewolf.OtherWin:      true,
}

func (s *Srv) serveArchive(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Winner string `json:"winner"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("failed to decode request: %v", err)
	}

	winner := werewolf.Winner(req.Winner)
	if !validWinners[winner] {
		return badRequest("unknown winner %q", req.Winner)
	}

	sess, err := s.db.CurrentSession()
	if err != nil {
		return err
	}

	g := session.ForSession(sess, s.now)
	g.Archive(winner)

	if err := s.db.ArchiveCurrent(g.Session()); err != nil {
		return err
	}

	if err := s.h.ToSession(sess.ID, &GameEnd{Session: g.Session()}); err != nil {
		s.logger.Warn("failed to broadcast game end", zap.Error(err))
	}
	return jsonResp(w, g.Session())
}

func (s *Srv) serveUnassignedRoles(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.db.CurrentSession()
	if err != nil {
		return err
	}
	return jsonResp(w, session.ForSession(sess, s.now).UnassignedRoles())
}

func (s *Srv) serveNightOrder(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.db.CurrentSession()
	if err != nil {
		return err
	}
	return jsonResp(w, roles.NightOrder(sess))
}

func (s *Srv) serveHistory(w http.ResponseWriter, r *http.Request) error {
	hist, err := s.db.History()
	if err != nil {
		return err
	}
	return jsonResp(w, hist)
}

func (s *Srv) serveTimer(w http.ResponseWriter, r *http.Request) error {
	rem, running := s.tm.Remaining()
	return jsonResp(w, &TimerState{Remaining: rem, Running: running})
}

func (s *Srv) serveTimerStart(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Seconds int `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("failed to decode request: %v", err)
	}
	if req.Seconds <= 0 {
		return badRequest("timer needs a positive duration, got %d", req.Seconds)
	}

	s.tm.Start(req.Seconds)
	rem, running := s.tm.Remaining()
	return jsonResp(w, &TimerState{Remaining: rem, Running: running})
}

func (s *Srv) serveTimerPause(w http.ResponseWriter, r *http.Request) error {
	s.tm.Pause()
	rem, running := s.tm.Remaining()
	return jsonResp(w, &TimerState{Remaining: rem, Running: running})
}

func (s *Srv) serveTimerResume(w http.ResponseWriter, r *http.Request) error {
	s.tm.Resume()
	rem, running := s.tm.Remaining()
	return jsonResp(w, &TimerState{Remaining: rem, Running: running})
}

func (s *Srv) serveTimerReset(w http.ResponseWriter, r *http.Request) error {
	s.tm.Reset()
	rem, running := s.tm.Remaining()
	return jsonResp(w, &TimerState{Remaining: rem, Running: running})
}

// timerExpired is the alarm hook, displays play the sound.
func (s *Srv) timerExpired() {
	sess, err := s.db.CurrentSession()
	if err != nil {
		return
	}
	if err := s.h.ToSession(sess.ID, &TimerExpired{}); err != nil {
		s.logger.Warn("failed to broadcast timer expiry", zap.Error(err))
	}
}

func (s *Srv) serveData(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.db.CurrentSession()
	if err != nil {
		return err
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return nil
	}

	s.h.Register(ws, sess.ID)
	return nil
}

func toPlayerIDs(ids []string) []werewolf.PlayerID {
	out := make([]werewolf.PlayerID, len(ids))
	for i, id := range ids {
		out[i] = werewolf.PlayerID(id)
	}
	return out
}

func jsonResp(w http.ResponseWriter, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}
