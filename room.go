/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"
)

// Player is one seat in a room. Tokens and timeline are only ever
// mutated by engine actions while the room lock is held.
type Player struct {
	ConnID   string
	Name     string
	Tokens   int
	Timeline []Song

	// send delivers a message to this player's connection. Nil in tests.
	send func(msg any)
}

type phase string

const (
	phaseWaiting     phase = "waiting"
	phasePlaying     phase = "playing"
	phaseChallenging phase = "challenging"
)

// ActiveGuess is the active player's placement submission for the
// current card.
type ActiveGuess struct {
	PlacementIndex int
	TitleGuess     string
	ArtistGuess    string
	SubmittedAt    time.Time
}

// Challenge is a non-active player's token-staked claim on a different
// placement index. At most one entry per player, at most one entry per
// index.
type Challenge struct {
	Name           string
	PlacementIndex int
	SubmittedAt    time.Time
}

// ChallengeResult records whether one challenger's index fell inside
// the valid range, for the reveal.
type ChallengeResult struct {
	Name           string `json:"name"`
	PlacementIndex int    `json:"placementIndex"`
	Correct        bool   `json:"correct"`
}

// Reveal is the end-of-round disclosure of the card and the outcome.
type Reveal struct {
	Song             Song              `json:"song"`
	RangeMin         int               `json:"rangeMin"`
	RangeMax         int               `json:"rangeMax"`
	ChosenIndex      int               `json:"chosenIndex"`
	PlacementCorrect bool              `json:"placementCorrect"`
	TitleCorrect     bool              `json:"titleCorrect"`
	ArtistCorrect    bool              `json:"artistCorrect"`
	TokenAwarded     bool              `json:"tokenAwarded"`
	Winner           string            `json:"winner,omitempty"`
	WinnerType       string            `json:"winnerType,omitempty"` // "active" or "challenger"
	ChallengeResults []ChallengeResult `json:"challengeResults"`
	Note             string            `json:"note,omitempty"`
}

// Game is the per-room engine state, embedded in Room.
type Game struct {
	Started      bool
	Finished     bool
	WinnerName   string
	Deck         *Deck
	TurnIndex    int
	CurrentCard  *Song
	Phase        phase
	MediaID      string
	LastReveal   *Reveal
	CardNonce    int
	ActiveGuess  *ActiveGuess
	Challenges   []Challenge
	Deadline     time.Time
	Singleplayer bool

	tokenSpent     map[string]bool
	challengeTimer *time.Timer
}

// Room is the unit of isolation: every engine action on a given room
// runs under its mutex, including any in-flight media lookup, so no two
// actions interleave their read-modify-write of Game state.
type Room struct {
	mu sync.Mutex

	code    string
	hostID  string
	players []*Player
	game    Game

	createdAt  time.Time
	lastActive time.Time

	cfg      *Config
	resolver *Resolver
	songs    []Song
}

const roomCodeLength = 5

// Registry owns every live room, keyed by code, plus the room each
// connection currently occupies.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	byConn map[string]*Room

	cfg      *Config
	resolver *Resolver
	songs    []Song
}

func newRegistry(cfg *Config, resolver *Resolver, songs []Song) *Registry {
	reg := &Registry{
		rooms:    make(map[string]*Room),
		byConn:   make(map[string]*Room),
		cfg:      cfg,
		resolver: resolver,
		songs:    songs,
	}
	if cfg.sessionTimeout > 0 {
		go reg.reaperLoop()
	}
	return reg
}

// newRoomCode generates a crypto-random room code, retrying until it
// doesn't collide with a live room. Assumes reg.mu is held.
func (reg *Registry) newRoomCode() string {
	const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	for {
		buf := make([]byte, roomCodeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomCodeLength)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		code := string(out)

		if _, exists := reg.rooms[code]; !exists {
			return code
		}
	}
}

func (reg *Registry) newRoom(singleplayer bool) *Room {
	now := time.Now()
	room := &Room{
		code:       reg.newRoomCode(),
		createdAt:  now,
		lastActive: now,
		cfg:        reg.cfg,
		resolver:   reg.resolver,
		songs:      reg.songs,
	}
	room.game.Singleplayer = singleplayer
	room.game.Phase = phaseWaiting
	room.game.tokenSpent = make(map[string]bool)
	reg.rooms[room.code] = room
	return room
}

// CreateRoom opens a new multiplayer room with the caller as host. A
// connection belongs to at most one room, so any previous membership is
// silently left first.
func (reg *Registry) CreateRoom(connID, name string, send func(msg any)) (string, *ActionError) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fail(errNameRequired, "a display name is required")
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.leaveLocked(connID)

	room := reg.newRoom(false)
	room.mu.Lock()
	room.hostID = connID
	room.players = append(room.players, &Player{ConnID: connID, Name: name, send: send})
	room.broadcastStateLocked()
	room.mu.Unlock()

	reg.byConn[connID] = room

	logf(reg.cfg, "GAMES: %q created room %s", name, room.code)

	return room.code, nil
}

// JoinRoom adds the caller to an existing room by code.
func (reg *Registry) JoinRoom(connID, code, name string, send func(msg any)) (string, *ActionError) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fail(errNameRequired, "a display name is required")
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return "", fail(errRoomNotFound, "room %s not found", code)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.game.Singleplayer {
		return "", fail(errSingleplayer, "room %s is a singleplayer game", room.code)
	}
	if len(room.players) >= reg.cfg.roomCap {
		return "", fail(errRoomFull, "room %s is full", room.code)
	}
	for _, p := range room.players {
		if strings.EqualFold(p.Name, name) {
			return "", fail(errNameTaken, "the name %q is already taken in room %s", name, room.code)
		}
	}

	reg.leaveLocked(connID)

	player := &Player{ConnID: connID, Name: name, send: send}
	if room.game.Started {
		// Late joiners enter the rotation with the standard token stake
		// and an empty timeline.
		player.Tokens = startingTokens
	}
	room.players = append(room.players, player)
	room.lastActive = time.Now()
	reg.byConn[connID] = room

	logf(reg.cfg, "GAMES: %q joined room %s", name, room.code)

	room.broadcastStateLocked()

	return room.code, nil
}

// StartSingle creates a singleplayer room and starts its game
// immediately. Singleplayer rooms reject joins and skip the challenge
// phase entirely.
func (reg *Registry) StartSingle(connID, name string, send func(msg any)) (string, *ActionError) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fail(errNameRequired, "a display name is required")
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.leaveLocked(connID)

	room := reg.newRoom(true)
	room.mu.Lock()
	room.hostID = connID
	room.players = append(room.players, &Player{ConnID: connID, Name: name, send: send})

	if err := room.startGameLocked(); err != nil {
		room.mu.Unlock()
		delete(reg.rooms, room.code)
		return "", err
	}

	room.broadcastStateLocked()
	room.mu.Unlock()

	reg.byConn[connID] = room

	logf(reg.cfg, "GAMES: %q started singleplayer room %s", name, room.code)

	return room.code, nil
}

// RoomFor returns the room a connection occupies, or nil.
func (reg *Registry) RoomFor(connID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.byConn[connID]
}

// Leave removes a connection from its room, if any. Called on explicit
// leave and on disconnect.
func (reg *Registry) Leave(connID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.leaveLocked(connID)
}

// leaveLocked assumes reg.mu is held. Empty rooms are destroyed along
// with any pending challenge timer.
func (reg *Registry) leaveLocked(connID string) {
	room, ok := reg.byConn[connID]
	if !ok {
		return
	}
	delete(reg.byConn, connID)

	room.mu.Lock()
	room.removePlayerLocked(connID)

	if len(room.players) == 0 {
		room.cancelChallengeTimerLocked()
		room.mu.Unlock()
		delete(reg.rooms, room.code)
		logf(reg.cfg, "GAMES: Destroyed empty room %s", room.code)
		return
	}

	room.broadcastStateLocked()
	room.mu.Unlock()
}

// removePlayerLocked drops a player from the room and repairs the game
// state around the gap: host transfer, turn index clamping, and
// abandoning the in-flight round if the active player left.
// Assumes room.mu is held.
func (r *Room) removePlayerLocked(connID string) {
	idx := -1
	for i, p := range r.players {
		if p.ConnID == connID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}

	leaver := r.players[idx]
	wasActive := r.game.Started && !r.game.Finished && idx == r.game.TurnIndex

	r.players = append(r.players[:idx], r.players[idx+1:]...)
	r.lastActive = time.Now()

	logf(r.cfg, "GAMES: %q left room %s", leaver.Name, r.code)

	if r.hostID == connID && len(r.players) > 0 {
		r.hostID = r.players[0].ConnID
	}

	if idx < r.game.TurnIndex {
		r.game.TurnIndex--
	}
	if len(r.players) > 0 && r.game.TurnIndex >= len(r.players) {
		r.game.TurnIndex = 0
	}

	// Drop any challenge the leaver held; their token stake is gone
	// with them.
	for i, c := range r.game.Challenges {
		if c.Name == leaver.Name {
			r.game.Challenges = append(r.game.Challenges[:i], r.game.Challenges[i+1:]...)
			break
		}
	}
	delete(r.game.tokenSpent, leaver.Name)

	// If the active player left mid-round the round is abandoned: the
	// card stays on offer for the next player, transient state is
	// cleared, and the deadline timer must not fire a resolve against
	// a vanished guess.
	if wasActive && r.game.Phase != phaseWaiting {
		r.cancelChallengeTimerLocked()
		r.clearRoundStateLocked()
		r.game.Phase = phaseWaiting
		r.broadcastLocked(StopDirective{Type: "stop"})
	}
}

func (r *Room) playerByConn(connID string) *Player {
	for _, p := range r.players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

func (r *Room) playerByName(name string) *Player {
	for _, p := range r.players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (r *Room) activePlayer() *Player {
	if len(r.players) == 0 {
		return nil
	}
	return r.players[r.game.TurnIndex]
}

func (r *Room) hostName() string {
	for _, p := range r.players {
		if p.ConnID == r.hostID {
			return p.Name
		}
	}
	return ""
}

// reaperLoop periodically destroys rooms idle longer than the session
// timeout, notifying their members first.
func (reg *Registry) reaperLoop() {
	ticker := time.NewTicker(reg.cfg.sessionTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-reg.cfg.sessionTimeout)

		reg.mu.Lock()
		for code, room := range reg.rooms {
			room.mu.Lock()
			if !room.lastActive.Before(cutoff) {
				room.mu.Unlock()
				continue
			}

			room.cancelChallengeTimerLocked()
			room.broadcastLocked(SimpleMessage{
				Type:    "room_closed",
				Message: "The room was closed due to inactivity.",
			})
			for _, p := range room.players {
				delete(reg.byConn, p.ConnID)
			}
			room.players = nil
			room.mu.Unlock()

			delete(reg.rooms, code)
			logf(reg.cfg, "GAMES: Reaped idle room %s", code)
		}
		reg.mu.Unlock()
	}
}
