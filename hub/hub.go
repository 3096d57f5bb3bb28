// Package hub fans session updates out to companion displays. The
// moderator's phone drives the game, any number of read-only screens (a
// tablet showing the table, a TV with the timer) watch over websockets.
package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/bcspragu/Werewolf/werewolf"
	"github.com/gorilla/websocket"
)

// Hub maintains the set of active connections and broadcasts messages to
// them, keyed by the session they're watching.
type Hub struct {
	// Registered connections.
	connections map[werewolf.SessionID][]*connection

	// Messages to send to everyone watching a session.
	broadcast chan *broadcastMsg

	// Register requests from the connections.
	register chan *connection

	// Unregister requests from connections.
	unregister chan *connection
}

// New creates a new Hub and starts it in a background Go routine.
func New() *Hub {
	h := &Hub{
		broadcast:   make(chan *broadcastMsg),
		register:    make(chan *connection),
		unregister:  make(chan *connection),
		connections: make(map[werewolf.SessionID][]*connection),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			conns := h.connections[c.sessionID]
			h.connections[c.sessionID] = append(conns, c)
		case c := <-h.unregister:
			h.deleteConn(c)
		case m := <-h.broadcast:
			for _, c := range h.connections[m.sessionID] {
				select {
				case c.send <- m.msg:
				default:
					h.deleteConn(c)
				}
			}
		}
	}
}

func (h *Hub) deleteConn(c *connection) {
	close(c.send)
	conns := h.connections[c.sessionID]
	for i, conn := range conns {
		if conn.id == c.id {
			// Remove the connection.
			copy(conns[i:], conns[i+1:])
			conns[len(conns)-1] = nil
			h.connections[c.sessionID] = conns[:len(conns)-1]
			return
		}
	}
}

type broadcastMsg struct {
	sessionID werewolf.SessionID
	msg       []byte
}

// ToSession sends a message to everyone watching a session.
func (h *Hub) ToSession(sID werewolf.SessionID, msg interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(msg); err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	h.broadcast <- &broadcastMsg{
		sessionID: sID,
		msg:       buf.Bytes(),
	}

	return nil
}

// Register associates a connection with the hub and a given session.
func (h *Hub) Register(ws *websocket.Conn, sID werewolf.SessionID) {
	conn := &connection{
		id:        newID(sID),
		h:         h,
		sessionID: sID,
		send:      make(chan []byte, 256),
		ws:        ws,
	}
	h.register <- conn
	go conn.writePump()
	go conn.readPump()
}

func newID(sID werewolf.SessionID) string {
	return fmt.Sprintf("%s-%d", sID, rand.Int63())
}
