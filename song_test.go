package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSongValidate(t *testing.T) {
	valid := Song{
		ID:          "s1",
		Title:       "Take On Me",
		Year:        1985,
		Artists:     []string{"a-ha"},
		SearchQuery: "a-ha take on me",
	}

	tests := []struct {
		name   string
		mutate func(s *Song)
		ok     bool
	}{
		{"valid", func(s *Song) {}, true},
		{"media id instead of query", func(s *Song) {
			s.SearchQuery = ""
			s.MediaID = "djV11Xbc914"
		}, true},
		{"missing id", func(s *Song) { s.ID = "" }, false},
		{"missing title", func(s *Song) { s.Title = "" }, false},
		{"implausible year", func(s *Song) { s.Year = 123 }, false},
		{"future year", func(s *Song) { s.Year = 3000 }, false},
		{"no artists", func(s *Song) { s.Artists = nil }, false},
		{"short media id", func(s *Song) { s.MediaID = "abc" }, false},
		{"no query and no media id", func(s *Song) { s.SearchQuery = "" }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := valid
			tc.mutate(&s)
			err := s.validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSongSearchString(t *testing.T) {
	s := Song{Title: "Hey Ya!", Artists: []string{"OutKast"}}
	assert.Equal(t, "Hey Ya! OutKast", s.searchString())

	s.SearchQuery = "outkast hey ya official"
	assert.Equal(t, "outkast hey ya official", s.searchString())
}

func TestLoadSongsEmbedded(t *testing.T) {
	songs, err := loadSongs(&Config{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(songs), 30)
}

func TestLoadSongsFromFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "songs.json")
	data := `[
		{"id": "x1", "title": "One", "year": 1991, "artists": ["A"], "searchQuery": "a one"},
		{"id": "x2", "title": "Two", "year": 1992, "artists": ["B"], "searchQuery": "b two"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	songs, err := loadSongs(&Config{songs: path})
	require.NoError(t, err)
	require.Len(t, songs, 2)
	assert.Equal(t, "x1", songs[0].ID)

	_, err = loadSongs(&Config{songs: filepath.Join(dir, "missing.json")})
	assert.Error(t, err)
}

func TestLoadSongsRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{`},
		{"empty list", `[]`},
		{"invalid record", `[{"id": "x1", "title": "", "year": 1991, "artists": ["A"], "searchQuery": "q"}]`},
		{"duplicate id", `[
			{"id": "x1", "title": "One", "year": 1991, "artists": ["A"], "searchQuery": "a"},
			{"id": "x1", "title": "Two", "year": 1992, "artists": ["B"], "searchQuery": "b"}
		]`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tc.data), 0o644))

			_, err := loadSongs(&Config{songs: path})
			assert.Error(t, err)
		})
	}
}

func TestDeckDrawOrder(t *testing.T) {
	songs := []Song{sg("a", 1990), sg("b", 1991), sg("c", 1992)}
	deck := newDeck(songs)

	require.Equal(t, 3, deck.size())

	for _, want := range []string{"a", "b", "c"} {
		card, ok := deck.draw()
		require.True(t, ok)
		assert.Equal(t, want, card.ID)
	}

	_, ok := deck.draw()
	assert.False(t, ok)
	assert.Equal(t, 0, deck.size())

	// The source slice is untouched.
	assert.Equal(t, "a", songs[0].ID)
}

func TestDeckShufflePreservesCards(t *testing.T) {
	songs := make([]Song, 20)
	for i := range songs {
		songs[i] = sg(string(rune('a'+i)), 1980+i)
	}

	deck := newDeck(songs)
	deck.shuffle()

	require.Equal(t, len(songs), deck.size())

	seen := make(map[string]bool, len(songs))
	for {
		card, ok := deck.draw()
		if !ok {
			break
		}
		assert.False(t, seen[card.ID], "card %s drawn twice", card.ID)
		seen[card.ID] = true
	}
	assert.Len(t, seen, len(songs))
}
