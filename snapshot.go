/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

// SimpleMessage is for generic notifications ("room_closed", etc.)
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PlayDirective tells clients to start playback of a media identifier
// at a wall-clock timestamp slightly in the future, so everyone can
// prepare before audio begins.
type PlayDirective struct {
	Type    string `json:"type"` // "play"
	MediaID string `json:"mediaId"`
	StartAt int64  `json:"startAt"` // unix milliseconds
}

// StopDirective tells clients to halt playback immediately.
type StopDirective struct {
	Type string `json:"type"` // "stop"
}

// PlayerView is the public projection of one player. Timelines are
// public; tokens are public.
type PlayerView struct {
	Name     string `json:"name"`
	Tokens   int    `json:"tokens"`
	Timeline []Song `json:"timeline"`
}

// ChallengeView exposes only a challenger's name and target slot.
type ChallengeView struct {
	Name           string `json:"name"`
	PlacementIndex int    `json:"placementIndex"`
}

// GameView is the public projection of the game state. The current
// card's content is withheld until the reveal; clients only learn that
// a card exists and its nonce.
type GameView struct {
	Started           bool            `json:"started"`
	Finished          bool            `json:"finished"`
	Winner            string          `json:"winner,omitempty"`
	Phase             string          `json:"phase"`
	ActivePlayer      string          `json:"activePlayer,omitempty"`
	HasCard           bool            `json:"hasCard"`
	CardNonce         int             `json:"cardNonce"`
	ChallengeDeadline int64           `json:"challengeDeadline,omitempty"` // unix milliseconds
	GuessIndex        *int            `json:"guessIndex,omitempty"`
	Challenges        []ChallengeView `json:"challenges"`
	LastReveal        *Reveal         `json:"lastReveal,omitempty"`
	Singleplayer      bool            `json:"singleplayer"`
}

// RoomStateMessage is the full snapshot broadcast to every member after
// each state-changing event. Clients treat it as the sole source of
// truth.
type RoomStateMessage struct {
	Type    string       `json:"type"` // "room_state"
	Code    string       `json:"code"`
	Host    string       `json:"host"`
	Players []PlayerView `json:"players"`
	Game    GameView     `json:"game"`
}

// snapshotLocked projects the room into its client-safe public view,
// recomputed fresh on every call. Assumes r.mu is held.
func (r *Room) snapshotLocked() RoomStateMessage {
	players := make([]PlayerView, 0, len(r.players))
	for _, p := range r.players {
		timeline := make([]Song, len(p.Timeline))
		copy(timeline, p.Timeline)
		players = append(players, PlayerView{
			Name:     p.Name,
			Tokens:   p.Tokens,
			Timeline: timeline,
		})
	}

	game := GameView{
		Started:      r.game.Started,
		Finished:     r.game.Finished,
		Winner:       r.game.WinnerName,
		Phase:        string(r.game.Phase),
		HasCard:      r.game.CurrentCard != nil,
		CardNonce:    r.game.CardNonce,
		Challenges:   make([]ChallengeView, 0, len(r.game.Challenges)),
		Singleplayer: r.game.Singleplayer,
	}

	if r.game.Started && !r.game.Finished {
		if ap := r.activePlayer(); ap != nil {
			game.ActivePlayer = ap.Name
		}
	}
	if !r.game.Deadline.IsZero() {
		game.ChallengeDeadline = r.game.Deadline.UnixMilli()
	}
	if r.game.ActiveGuess != nil {
		idx := r.game.ActiveGuess.PlacementIndex
		game.GuessIndex = &idx
	}
	for _, c := range r.game.Challenges {
		game.Challenges = append(game.Challenges, ChallengeView{
			Name:           c.Name,
			PlacementIndex: c.PlacementIndex,
		})
	}
	game.LastReveal = r.game.LastReveal

	return RoomStateMessage{
		Type:    "room_state",
		Code:    r.code,
		Host:    r.hostName(),
		Players: players,
		Game:    game,
	}
}

// broadcastLocked fans a message out to every member's connection.
// Fire-and-forget: a slow or gone client never blocks the action.
// Assumes r.mu is held.
func (r *Room) broadcastLocked(msg any) {
	for _, p := range r.players {
		if p.send != nil {
			p.send(msg)
		}
	}
}

// broadcastStateLocked publishes a fresh snapshot to the whole room.
// Assumes r.mu is held.
func (r *Room) broadcastStateLocked() {
	r.broadcastLocked(r.snapshotLocked())
}
