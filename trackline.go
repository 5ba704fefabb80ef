// Trackline
//
// Each player builds a chronological timeline of songs. On their turn,
// the active player hears a short clip of a hidden song and places it
// where they think it belongs in their timeline by release year. Other
// players can stake a token to challenge the placement and steal the
// card. Longest timeline when the deck runs out wins.
//
// Features:
// - One WebSocket per connection: /ws, with rooms joined by short code
// - Rooms created on demand, destroyed when the last player leaves
// - Host starts the game; host privilege passes on if the host leaves
// - Singleplayer rooms auto-start and skip the challenge phase
// - Token economy: skip a card (1), buy a card outright (3), challenge (1)
// - Server-authoritative challenge deadline timer
// - Full room snapshot broadcast to all members on every mutation
// - Media identifiers resolved server-side and cached per query
// - Games auto-reaped after configurable idle timeout
// - Random 5-char room codes via crypto/rand, with collision check
// - In-browser QR button to share a room, backed by go-qrcode

package main

import (
	"context"
	_ "embed"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// ---- Static file paths ----

//go:embed trackline/index.html
var tracklineHTML []byte

//go:embed trackline/app.css
var tracklineCSS []byte

//go:embed trackline/app.js
var tracklineJS []byte

// ClientMessage carries every action a client can request.
type ClientMessage struct {
	Type           string `json:"type"` // "create_room", "join_room", "start_single", "start_game", "play", "skip", "buy", "guess", "challenge", "leave_room"
	Name           string `json:"name,omitempty"`
	Room           string `json:"room,omitempty"`
	PlacementIndex int    `json:"placementIndex,omitempty"`
	TitleGuess     string `json:"titleGuess,omitempty"`
	ArtistGuess    string `json:"artistGuess,omitempty"`
}

// AckMessage acknowledges a successful action. The snapshot that
// follows is the source of truth; the ack only correlates the request.
type AckMessage struct {
	Type   string `json:"type"` // "ack"
	Action string `json:"action"`
	Room   string `json:"room,omitempty"`
}

// ActionErrorMessage reports a rejected action back to its caller only.
type ActionErrorMessage struct {
	Type    string `json:"type"` // "action_error"
	Action  string `json:"action"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Client struct {
	conn *websocket.Conn
	send chan any
	id   string
}

// trySend queues a message for the client, dropping it if the buffer is
// full so a stalled connection never blocks a room.
func (c *Client) trySend(msg any) {
	select {
	case c.send <- msg:
	default:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWS(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 16),
			id:   uuid.NewString(),
		}

		go client.writePump()
		client.readPump(cfg, reg)
	}
}

func (c *Client) readPump(cfg *Config, reg *Registry) {
	defer func() {
		reg.Leave(c.id)
		close(c.send)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.dispatch(cfg, reg, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// dispatch validates and routes one client action, answering with an
// ack or an action_error. State changes are communicated through the
// snapshot broadcasts the engine emits, never inferred from the ack.
func (c *Client) dispatch(cfg *Config, reg *Registry, msg ClientMessage) {
	var (
		code string
		err  *ActionError
	)

	switch msg.Type {
	case "create_room":
		code, err = reg.CreateRoom(c.id, msg.Name, c.trySend)

	case "join_room":
		code, err = reg.JoinRoom(c.id, msg.Room, msg.Name, c.trySend)

	case "start_single":
		code, err = reg.StartSingle(c.id, msg.Name, c.trySend)

	case "leave_room":
		reg.Leave(c.id)

	case "start_game", "play", "skip", "buy", "guess", "challenge":
		room := reg.RoomFor(c.id)
		if room == nil {
			err = fail(errRoomNotFound, "you are not in a room")
			break
		}
		code = room.code

		switch msg.Type {
		case "start_game":
			err = room.StartGame(c.id)
		case "play":
			err = room.Play(context.Background(), c.id)
		case "skip":
			err = room.Skip(context.Background(), c.id)
		case "buy":
			err = room.Buy(c.id)
		case "guess":
			err = room.SubmitGuess(c.id, msg.PlacementIndex, msg.TitleGuess, msg.ArtistGuess)
		case "challenge":
			err = room.Challenge(c.id, msg.PlacementIndex)
		}

	default:
		// ignore unknown types
		return
	}

	if err != nil {
		logf(cfg, "GAMES: Rejected %s: %s", msg.Type, err.Msg)
		c.trySend(ActionErrorMessage{
			Type:    "action_error",
			Action:  msg.Type,
			Code:    string(err.Code),
			Message: err.Msg,
		})
		return
	}

	c.trySend(AckMessage{
		Type:   "ack",
		Action: msg.Type,
		Room:   code,
	})
}

// qrHandler generates a PNG QR code for the current room URL.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomCode := ps.ByName("room")
	if roomCode == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:room/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func getGamePageHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(tracklineHTML)
	}
}

func getCssHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(tracklineCSS)
	}
}

func getJsHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(tracklineJS)
	}
}

// registerTracklineGame sets up routes so that:
//   - $path              → HTML client (creates or joins via form)
//   - $path/:room        → HTML client with the room code prefilled
//   - $path/:room/qr     → PNG QR code for that room URL
//   - /ws                → WebSocket shared by all rooms
func registerTracklineGame(cfg *Config, path string, mux *httprouter.Router, songs []Song) {
	reg := newRegistry(cfg, newResolver(cfg), songs)

	// Client view, with and without a room code in the URL
	mux.GET(cfg.prefix+path, getGamePageHandler(cfg))
	mux.GET(cfg.prefix+path+"/:room", getGamePageHandler(cfg))

	// Shared assets (no room code in route)
	mux.GET(cfg.prefix+"/assets/trackline/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/trackline/app.js", getJsHandler(cfg))

	// Shared websocket
	mux.GET(cfg.prefix+"/ws", serveWS(cfg, reg))

	// Per-room QR code
	mux.GET(cfg.prefix+path+"/:room/qr", qrHandler)
}
