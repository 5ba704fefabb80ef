/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "embed"
)

//go:embed songs.json
var embeddedSongs []byte

// Song is an immutable record describing one playable card. Songs are
// validated once at load time and never mutated afterwards.
type Song struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Year        int      `json:"year"`
	Artists     []string `json:"artists"`
	SearchQuery string   `json:"searchQuery,omitempty"`
	MediaID     string   `json:"mediaId,omitempty"`
}

const mediaIDLength = 11

// validate checks the fields a card needs downstream, so nothing has to
// re-check them mid-game.
func (s *Song) validate() error {
	if s.ID == "" {
		return fmt.Errorf("song %q: missing id", s.Title)
	}
	if s.Title == "" {
		return fmt.Errorf("song %s: missing title", s.ID)
	}
	if s.Year < 1000 || s.Year > time.Now().Year()+1 {
		return fmt.Errorf("song %s: implausible year %d", s.ID, s.Year)
	}
	if len(s.Artists) == 0 {
		return fmt.Errorf("song %s: no artists", s.ID)
	}
	if s.MediaID != "" && len(s.MediaID) != mediaIDLength {
		return fmt.Errorf("song %s: media id %q is not %d characters", s.ID, s.MediaID, mediaIDLength)
	}
	if s.SearchQuery == "" && s.MediaID == "" {
		return fmt.Errorf("song %s: needs a search query or a media id", s.ID)
	}
	return nil
}

// searchString returns the query used for media identifier lookups.
func (s *Song) searchString() string {
	if s.SearchQuery != "" {
		return s.SearchQuery
	}
	query := s.Title
	for _, a := range s.Artists {
		query += " " + a
	}
	return query
}

// loadSongs reads the song pool from --songs if set, falling back to the
// embedded list. Every record is validated before the server starts.
func loadSongs(cfg *Config) ([]Song, error) {
	data := embeddedSongs
	if cfg.songs != "" {
		var err error
		data, err = os.ReadFile(cfg.songs)
		if err != nil {
			return nil, fmt.Errorf("reading song list: %w", err)
		}
	}

	var songs []Song
	if err := json.Unmarshal(data, &songs); err != nil {
		return nil, fmt.Errorf("parsing song list: %w", err)
	}
	if len(songs) == 0 {
		return nil, fmt.Errorf("song list is empty")
	}

	seen := make(map[string]bool, len(songs))
	for i := range songs {
		if err := songs[i].validate(); err != nil {
			return nil, err
		}
		if seen[songs[i].ID] {
			return nil, fmt.Errorf("duplicate song id %s", songs[i].ID)
		}
		seen[songs[i].ID] = true
	}

	return songs, nil
}

// Deck is an ordered queue of songs, drawn front to back.
type Deck struct {
	cards []Song
}

func newDeck(songs []Song) *Deck {
	cards := make([]Song, len(songs))
	copy(cards, songs)
	return &Deck{cards: cards}
}

func (d *Deck) size() int {
	return len(d.cards)
}

// shuffle applies a Fisher-Yates permutation using crypto/rand.
func (d *Deck) shuffle() {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := int(randUint64() % uint64(i+1))
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// draw pops the next card, or returns false when the deck is exhausted.
func (d *Deck) draw() (Song, bool) {
	if len(d.cards) == 0 {
		return Song{}, false
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, true
}

func randUint64() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return binary.BigEndian.Uint64(buf[:])
}
