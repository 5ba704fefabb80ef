/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"time"
)

const (
	startingTokens = 2
	skipCost       = 1
	buyCost        = 3

	// Lead time clients get between receiving a play directive and the
	// moment playback should begin.
	playBuffer = 800 * time.Millisecond
)

// placementRange returns the contiguous range of valid insertion
// positions [min, max] for a card of the given year within a timeline
// sorted ascending by year. Any position among entries tying the year
// is accepted; a single slot when no ties exist.
func placementRange(timeline []Song, year int) (int, int) {
	low := len(timeline)
	for i, s := range timeline {
		if s.Year >= year {
			low = i
			break
		}
	}
	high := len(timeline)
	for i, s := range timeline {
		if s.Year > year {
			high = i
			break
		}
	}
	return low, high
}

// insertTimeline inserts a song at the end of its tie block, keeping
// the timeline sorted ascending by year with ties in insertion order.
func insertTimeline(timeline []Song, song Song) []Song {
	_, high := placementRange(timeline, song.Year)
	timeline = append(timeline, Song{})
	copy(timeline[high+1:], timeline[high:])
	timeline[high] = song
	return timeline
}

// StartGame begins a multiplayer game. Host only.
func (r *Room) StartGame(connID string) *ActionError {
	r.mu.Lock()
	defer r.mu.Unlock()

	if connID != r.hostID {
		return fail(errNotHost, "only the host can start the game")
	}
	if r.game.Started {
		return fail(errAlreadyStarted, "the game has already started")
	}

	if err := r.startGameLocked(); err != nil {
		return err
	}

	r.broadcastStateLocked()

	return nil
}

// startGameLocked deals one starting card per player, resets tokens,
// shuffles the remaining deck, and draws the first current card.
// Assumes r.mu is held.
func (r *Room) startGameLocked() *ActionError {
	if len(r.songs) == 0 || len(r.songs) < len(r.players)+1 {
		return fail(errNotEnoughSongs, "need at least %d songs for %d players, have %d",
			len(r.players)+1, len(r.players), len(r.songs))
	}

	deck := newDeck(r.songs)
	deck.shuffle()

	for _, p := range r.players {
		p.Tokens = startingTokens
		p.Timeline = nil
		card, _ := deck.draw()
		p.Timeline = insertTimeline(p.Timeline, card)
	}

	card, _ := deck.draw()

	r.game.Started = true
	r.game.Finished = false
	r.game.WinnerName = ""
	r.game.Deck = deck
	r.game.TurnIndex = 0
	r.game.CurrentCard = &card
	r.game.CardNonce++
	r.game.Phase = phaseWaiting
	r.game.MediaID = ""
	r.game.LastReveal = nil
	r.clearRoundStateLocked()
	r.lastActive = time.Now()

	logf(r.cfg, "GAMES: Started game in room %s with %d players", r.code, len(r.players))

	return nil
}

// guardTurn validates the common preconditions for active-player
// actions. Assumes r.mu is held.
func (r *Room) guardTurn(connID string) (*Player, *ActionError) {
	if !r.game.Started {
		return nil, fail(errNotStarted, "the game has not started")
	}
	if r.game.Finished {
		return nil, fail(errGameFinished, "the game is over")
	}
	ap := r.activePlayer()
	if ap == nil {
		return nil, fail(errNotStarted, "no active player")
	}
	if ap.ConnID != connID {
		return nil, fail(errNotYourTurn, "it is not your turn")
	}
	return ap, nil
}

// Play resolves a playable media identifier for the current card and
// opens the guessing phase. The room lock is held across the lookup so
// no other action can mutate phase while it is in flight.
func (r *Room) Play(ctx context.Context, connID string) *ActionError {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.guardTurn(connID); err != nil {
		return err
	}
	if r.game.Phase != phaseWaiting {
		return fail(errWrongPhase, "cannot play during the %s phase", r.game.Phase)
	}
	if r.game.CurrentCard == nil {
		return fail(errNoCard, "no current card")
	}

	mediaID, err := r.resolver.resolveSong(ctx, r.game.CurrentCard)
	if err != nil {
		logf(r.cfg, "GAMES: Media lookup failed in room %s: %v", r.code, err)
		return fail(errNoPlayableMedia, "no playable media found for this card")
	}

	r.clearRoundStateLocked()
	r.game.MediaID = mediaID
	r.game.Phase = phasePlaying
	r.lastActive = time.Now()

	r.broadcastLocked(PlayDirective{
		Type:    "play",
		MediaID: mediaID,
		StartAt: time.Now().Add(playBuffer).UnixMilli(),
	})
	r.broadcastStateLocked()

	return nil
}

// Skip swaps the current card for the next one in the deck, at a cost
// of one token. If the replacement card's media cannot be resolved the
// swap still stands: the token is spent, the card advances, and the
// round continues without audio.
func (r *Room) Skip(ctx context.Context, connID string) *ActionError {
	r.mu.Lock()
	defer r.mu.Unlock()

	ap, err := r.guardTurn(connID)
	if err != nil {
		return err
	}
	if r.game.Phase != phasePlaying {
		return fail(errWrongPhase, "cannot skip during the %s phase", r.game.Phase)
	}
	if ap.Tokens < skipCost {
		return fail(errNoTokens, "skipping costs %d token, you have %d", skipCost, ap.Tokens)
	}
	if r.game.Deck.size() == 0 {
		return fail(errDeckEmpty, "the deck is empty")
	}

	ap.Tokens -= skipCost
	r.lastActive = time.Now()

	r.broadcastLocked(StopDirective{Type: "stop"})

	card, _ := r.game.Deck.draw()
	r.game.CurrentCard = &card
	r.game.CardNonce++
	r.clearRoundStateLocked()

	mediaID, lookupErr := r.resolver.resolveSong(ctx, r.game.CurrentCard)
	if lookupErr != nil {
		// Degraded but continues: the turn is left without playable
		// audio, noted on the reveal for clients to surface.
		logf(r.cfg, "GAMES: Media lookup failed after skip in room %s: %v", r.code, lookupErr)
		r.game.MediaID = ""
		if r.game.LastReveal == nil {
			r.game.LastReveal = &Reveal{}
		}
		r.game.LastReveal.Note = "no playable media found for the swapped card"
	} else {
		r.game.MediaID = mediaID
		r.broadcastLocked(PlayDirective{
			Type:    "play",
			MediaID: mediaID,
			StartAt: time.Now().Add(playBuffer).UnixMilli(),
		})
	}

	r.broadcastStateLocked()

	return nil
}

// Buy spends three tokens to take the current card sight unseen: it is
// inserted at the correct position in the buyer's timeline without
// being played or guessed, and the turn advances.
func (r *Room) Buy(connID string) *ActionError {
	r.mu.Lock()
	defer r.mu.Unlock()

	ap, err := r.guardTurn(connID)
	if err != nil {
		return err
	}
	if r.game.Phase != phaseWaiting {
		return fail(errWrongPhase, "cannot buy during the %s phase", r.game.Phase)
	}
	if r.game.CurrentCard == nil {
		return fail(errNoCard, "no current card")
	}
	if ap.Tokens < buyCost {
		return fail(errNoTokens, "buying costs %d tokens, you have %d", buyCost, ap.Tokens)
	}

	ap.Tokens -= buyCost
	ap.Timeline = insertTimeline(ap.Timeline, *r.game.CurrentCard)
	r.lastActive = time.Now()

	r.advanceAndDrawLocked()
	r.broadcastStateLocked()

	return nil
}

// SubmitGuess records the active player's placement and title/artist
// guesses. In singleplayer the round resolves immediately; otherwise a
// challenge window opens with a deadline timer that resolves the round
// if nobody pre-empts it.
func (r *Room) SubmitGuess(connID string, placementIndex int, titleGuess, artistGuess string) *ActionError {
	r.mu.Lock()
	defer r.mu.Unlock()

	ap, err := r.guardTurn(connID)
	if err != nil {
		return err
	}
	if r.game.Phase != phasePlaying {
		return fail(errWrongPhase, "cannot guess during the %s phase", r.game.Phase)
	}

	placementIndex = clamp(placementIndex, 0, len(ap.Timeline))

	r.game.ActiveGuess = &ActiveGuess{
		PlacementIndex: placementIndex,
		TitleGuess:     titleGuess,
		ArtistGuess:    artistGuess,
		SubmittedAt:    time.Now(),
	}
	r.lastActive = time.Now()

	r.broadcastLocked(StopDirective{Type: "stop"})

	if r.game.Singleplayer {
		r.resolveLocked()
	} else {
		r.game.Phase = phaseChallenging
		r.game.Deadline = time.Now().Add(r.cfg.challengeWindow)

		nonce := r.game.CardNonce
		r.game.challengeTimer = time.AfterFunc(r.cfg.challengeWindow, func() {
			r.resolveFromDeadline(nonce)
		})
	}

	r.broadcastStateLocked()

	return nil
}

// Challenge stakes a token on a different placement index being the
// correct one. The first challenge in a round costs one token;
// retargeting an existing challenge is free. The active player's own
// chosen slot is reserved, and no two challengers may hold the same
// slot.
func (r *Room) Challenge(connID string, placementIndex int) *ActionError {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.game.Singleplayer {
		return fail(errSingleplayer, "singleplayer games have no challenges")
	}
	if !r.game.Started {
		return fail(errNotStarted, "the game has not started")
	}
	if r.game.Finished {
		return fail(errGameFinished, "the game is over")
	}

	player := r.playerByConn(connID)
	if player == nil {
		return fail(errRoomNotFound, "you are not in this room")
	}
	if r.game.Phase != phaseChallenging {
		return fail(errWrongPhase, "cannot challenge during the %s phase", r.game.Phase)
	}

	ap := r.activePlayer()
	if player == ap {
		return fail(errNotYourTurn, "you cannot challenge your own placement")
	}

	placementIndex = clamp(placementIndex, 0, len(ap.Timeline))

	if r.game.ActiveGuess != nil && placementIndex == r.game.ActiveGuess.PlacementIndex {
		return fail(errSlotReserved, "slot %d is the active player's guess", placementIndex)
	}
	for _, c := range r.game.Challenges {
		if c.Name != player.Name && c.PlacementIndex == placementIndex {
			return fail(errSlotTaken, "slot %d is already challenged by %s", placementIndex, c.Name)
		}
	}

	now := time.Now()

	for i := range r.game.Challenges {
		if r.game.Challenges[i].Name == player.Name {
			// Retargeting is free; the entry's timestamp becomes the
			// update time.
			r.game.Challenges[i].PlacementIndex = placementIndex
			r.game.Challenges[i].SubmittedAt = now
			r.lastActive = now
			r.broadcastStateLocked()
			return nil
		}
	}

	if !r.game.tokenSpent[player.Name] {
		if player.Tokens < 1 {
			return fail(errNoTokens, "challenging costs 1 token, you have %d", player.Tokens)
		}
		player.Tokens--
		r.game.tokenSpent[player.Name] = true
	}

	r.game.Challenges = append(r.game.Challenges, Challenge{
		Name:           player.Name,
		PlacementIndex: placementIndex,
		SubmittedAt:    now,
	})
	r.lastActive = now

	r.broadcastStateLocked()

	return nil
}

// resolveFromDeadline is the challenge timer callback. It re-validates
// phase and nonce under the lock, so a timer that lost the race to a
// manual resolve (or to room teardown) is a no-op.
func (r *Room) resolveFromDeadline(nonce int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.game.Started || r.game.Finished {
		return
	}
	if r.game.Phase != phaseChallenging || r.game.CardNonce != nonce || r.game.ActiveGuess == nil {
		return
	}

	r.resolveLocked()
	r.broadcastStateLocked()
}

// resolveLocked adjudicates the round: checks the active placement,
// picks a winner, moves the card, scores tokens, publishes the reveal,
// and advances to the next turn. Assumes r.mu is held and an active
// guess exists.
func (r *Room) resolveLocked() {
	r.cancelChallengeTimerLocked()

	card := *r.game.CurrentCard
	ap := r.activePlayer()
	guess := r.game.ActiveGuess

	low, high := placementRange(ap.Timeline, card.Year)
	placementCorrect := guess.PlacementIndex >= low && guess.PlacementIndex <= high
	titleCorrect := titleMatches(guess.TitleGuess, card.Title)
	artistCorrect := artistMatches(guess.ArtistGuess, card.Artists)

	var winner *Player
	winnerType := ""

	if placementCorrect {
		winner = ap
		winnerType = "active"
	} else if !r.game.Singleplayer {
		var best *Challenge
		for i := range r.game.Challenges {
			c := &r.game.Challenges[i]
			if c.PlacementIndex < low || c.PlacementIndex > high {
				continue
			}
			if best == nil || c.SubmittedAt.Before(best.SubmittedAt) {
				best = c
			}
		}
		if best != nil {
			winner = r.playerByName(best.Name)
			winnerType = "challenger"
		}
	}

	results := make([]ChallengeResult, 0, len(r.game.Challenges))
	for _, c := range r.game.Challenges {
		results = append(results, ChallengeResult{
			Name:           c.Name,
			PlacementIndex: c.PlacementIndex,
			Correct:        c.PlacementIndex >= low && c.PlacementIndex <= high,
		})
	}

	tokenAwarded := false
	if winner != nil {
		winner.Timeline = insertTimeline(winner.Timeline, card)
		if winnerType == "active" && titleCorrect && artistCorrect {
			ap.Tokens++
			tokenAwarded = true
		}
	}

	reveal := &Reveal{
		Song:             card,
		RangeMin:         low,
		RangeMax:         high,
		ChosenIndex:      guess.PlacementIndex,
		PlacementCorrect: placementCorrect,
		TitleCorrect:     titleCorrect,
		ArtistCorrect:    artistCorrect,
		TokenAwarded:     tokenAwarded,
		WinnerType:       winnerType,
		ChallengeResults: results,
	}
	if winner != nil {
		reveal.Winner = winner.Name
	}
	r.game.LastReveal = reveal

	r.clearRoundStateLocked()
	r.game.Phase = phaseWaiting
	r.lastActive = time.Now()

	r.advanceAndDrawLocked()
}

// advanceAndDrawLocked moves to the next seat and draws the next card.
// When the deck runs dry the game finishes: the longest timeline wins,
// ties broken by tokens, then seat order. Assumes r.mu is held.
func (r *Room) advanceAndDrawLocked() {
	r.game.TurnIndex = (r.game.TurnIndex + 1) % len(r.players)
	r.game.MediaID = ""

	card, ok := r.game.Deck.draw()
	if !ok {
		r.finishGameLocked()
		return
	}

	r.game.CurrentCard = &card
	r.game.CardNonce++
}

// finishGameLocked ends the game once the deck is exhausted.
// Assumes r.mu is held.
func (r *Room) finishGameLocked() {
	r.game.Finished = true
	r.game.CurrentCard = nil
	r.game.MediaID = ""
	r.game.Phase = phaseWaiting

	var winner *Player
	for _, p := range r.players {
		if winner == nil ||
			len(p.Timeline) > len(winner.Timeline) ||
			(len(p.Timeline) == len(winner.Timeline) && p.Tokens > winner.Tokens) {
			winner = p
		}
	}
	if winner != nil {
		r.game.WinnerName = winner.Name
	}

	logf(r.cfg, "GAMES: Game finished in room %s, winner %q", r.code, r.game.WinnerName)
}

// clearRoundStateLocked drops all per-round transient state.
// Assumes r.mu is held.
func (r *Room) clearRoundStateLocked() {
	r.game.ActiveGuess = nil
	r.game.Challenges = nil
	r.game.Deadline = time.Time{}
	r.game.tokenSpent = make(map[string]bool)
}

// cancelChallengeTimerLocked stops the deadline timer. Called on every
// path into resolve, no matter the trigger, so resolve never runs
// twice for one round. Assumes r.mu is held.
func (r *Room) cancelChallengeTimerLocked() {
	if r.game.challengeTimer != nil {
		r.game.challengeTimer.Stop()
		r.game.challengeTimer = nil
	}
}

func clamp(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
