package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := testConfig()

	songs := make([]Song, 0, 12)
	for i := 0; i < 12; i++ {
		songs = append(songs, sg(fmt.Sprintf("s%d", i), 1960+i*5))
	}

	// Zero session timeout keeps the reaper out of tests.
	return newRegistry(cfg, newResolver(cfg), songs)
}

func TestCreateAndJoinRoom(t *testing.T) {
	reg := testRegistry(t)
	s1, s2 := &sink{}, &sink{}

	code, aerr := reg.CreateRoom("c1", "alice", s1.add)
	require.Nil(t, aerr)
	require.Len(t, code, roomCodeLength)

	_, aerr = reg.CreateRoom("c2", "  ", s2.add)
	require.NotNil(t, aerr)
	assert.Equal(t, errNameRequired, aerr.Code)

	_, aerr = reg.JoinRoom("c2", "ZZZZZ", "bob", s2.add)
	require.NotNil(t, aerr)
	assert.Equal(t, errRoomNotFound, aerr.Code)

	joined, aerr := reg.JoinRoom("c2", code, "bob", s2.add)
	require.Nil(t, aerr)
	assert.Equal(t, code, joined)

	room := reg.RoomFor("c2")
	require.NotNil(t, room)
	assert.Same(t, room, reg.RoomFor("c1"))

	state := s1.lastState()
	require.NotNil(t, state)
	assert.Equal(t, code, state.Code)
	assert.Equal(t, "alice", state.Host)
	require.Len(t, state.Players, 2)
}

func TestJoinRoomCodeIsCaseInsensitive(t *testing.T) {
	reg := testRegistry(t)
	s1, s2 := &sink{}, &sink{}

	code, aerr := reg.CreateRoom("c1", "alice", s1.add)
	require.Nil(t, aerr)

	var lower string
	for _, r := range code {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		lower += string(r)
	}

	_, aerr = reg.JoinRoom("c2", " "+lower+" ", "bob", s2.add)
	require.Nil(t, aerr)
}

func TestJoinRoomNameTaken(t *testing.T) {
	reg := testRegistry(t)
	s1, s2 := &sink{}, &sink{}

	code, aerr := reg.CreateRoom("c1", "Alice", s1.add)
	require.Nil(t, aerr)

	_, aerr = reg.JoinRoom("c2", code, "alice", s2.add)
	require.NotNil(t, aerr)
	assert.Equal(t, errNameTaken, aerr.Code)
}

func TestJoinRoomFull(t *testing.T) {
	reg := testRegistry(t)
	reg.cfg.roomCap = 2

	code, aerr := reg.CreateRoom("c1", "alice", (&sink{}).add)
	require.Nil(t, aerr)
	_, aerr = reg.JoinRoom("c2", code, "bob", (&sink{}).add)
	require.Nil(t, aerr)

	_, aerr = reg.JoinRoom("c3", code, "carol", (&sink{}).add)
	require.NotNil(t, aerr)
	assert.Equal(t, errRoomFull, aerr.Code)
}

func TestJoinRejectsSingleplayerRoom(t *testing.T) {
	reg := testRegistry(t)

	code, aerr := reg.StartSingle("c1", "alice", (&sink{}).add)
	require.Nil(t, aerr)

	_, aerr = reg.JoinRoom("c2", code, "bob", (&sink{}).add)
	require.NotNil(t, aerr)
	assert.Equal(t, errSingleplayer, aerr.Code)
}

func TestStartSingleAutoStarts(t *testing.T) {
	reg := testRegistry(t)
	s := &sink{}

	code, aerr := reg.StartSingle("c1", "alice", s.add)
	require.Nil(t, aerr)

	room := reg.RoomFor("c1")
	require.NotNil(t, room)
	assert.Equal(t, code, room.code)
	assert.True(t, room.game.Started)
	assert.True(t, room.game.Singleplayer)
	require.NotNil(t, room.game.CurrentCard)

	state := s.lastState()
	require.NotNil(t, state)
	assert.True(t, state.Game.Started)
	assert.True(t, state.Game.Singleplayer)
}

func TestStartSingleNotEnoughSongs(t *testing.T) {
	cfg := testConfig()
	reg := newRegistry(cfg, newResolver(cfg), []Song{sg("s0", 1970)})

	_, aerr := reg.StartSingle("c1", "alice", (&sink{}).add)
	require.NotNil(t, aerr)
	assert.Equal(t, errNotEnoughSongs, aerr.Code)

	// The failed room was torn down, not leaked.
	assert.Nil(t, reg.RoomFor("c1"))
	assert.Empty(t, reg.rooms)
}

func TestOneRoomPerConnection(t *testing.T) {
	reg := testRegistry(t)
	s := &sink{}

	first, aerr := reg.CreateRoom("c1", "alice", s.add)
	require.Nil(t, aerr)

	second, aerr := reg.CreateRoom("c1", "alice", s.add)
	require.Nil(t, aerr)
	assert.NotEqual(t, first, second)

	// The first room emptied out and was destroyed.
	assert.Nil(t, reg.rooms[first])
	assert.Equal(t, second, reg.RoomFor("c1").code)
	assert.Len(t, reg.rooms, 1)
}

func TestLeaveTransfersHost(t *testing.T) {
	reg := testRegistry(t)
	s1, s2 := &sink{}, &sink{}

	code, aerr := reg.CreateRoom("c1", "alice", s1.add)
	require.Nil(t, aerr)
	_, aerr = reg.JoinRoom("c2", code, "bob", s2.add)
	require.Nil(t, aerr)

	reg.Leave("c1")

	room := reg.RoomFor("c2")
	require.NotNil(t, room)
	assert.Equal(t, "c2", room.hostID)

	state := s2.lastState()
	require.NotNil(t, state)
	assert.Equal(t, "bob", state.Host)
	require.Len(t, state.Players, 1)
}

func TestLeaveDestroysEmptyRoom(t *testing.T) {
	reg := testRegistry(t)

	code, aerr := reg.CreateRoom("c1", "alice", (&sink{}).add)
	require.Nil(t, aerr)

	reg.Leave("c1")

	assert.Nil(t, reg.RoomFor("c1"))
	assert.Nil(t, reg.rooms[code])

	// Leaving twice is harmless.
	reg.Leave("c1")
}

func TestLateJoinerGetsStartingTokens(t *testing.T) {
	reg := testRegistry(t)

	code, aerr := reg.CreateRoom("c1", "alice", (&sink{}).add)
	require.Nil(t, aerr)
	_, aerr = reg.JoinRoom("c2", code, "bob", (&sink{}).add)
	require.Nil(t, aerr)

	room := reg.RoomFor("c1")
	require.Nil(t, room.StartGame("c1"))

	_, aerr = reg.JoinRoom("c3", code, "carol", (&sink{}).add)
	require.Nil(t, aerr)

	carol := room.playerByName("carol")
	require.NotNil(t, carol)
	assert.Equal(t, startingTokens, carol.Tokens)
	assert.Empty(t, carol.Timeline)
}

func TestRemovePlayerRepairsTurnIndex(t *testing.T) {
	reg := testRegistry(t)
	sinks := map[string]*sink{}

	code := ""
	for i, name := range []string{"alice", "bob", "carol"} {
		s := &sink{}
		sinks[name] = s
		if i == 0 {
			c, aerr := reg.CreateRoom(conn(name), name, s.add)
			require.Nil(t, aerr)
			code = c
		} else {
			_, aerr := reg.JoinRoom(conn(name), code, name, s.add)
			require.Nil(t, aerr)
		}
	}

	room := reg.RoomFor(conn("alice"))
	require.Nil(t, room.StartGame(conn("alice")))

	room.game.TurnIndex = 2 // carol's turn

	// A seat before the active one leaving shifts the index down.
	reg.Leave(conn("bob"))
	assert.Equal(t, 1, room.game.TurnIndex)
	assert.Equal(t, "carol", room.activePlayer().Name)

	// The last seat leaving while active wraps the index to the front.
	reg.Leave(conn("carol"))
	assert.Equal(t, 0, room.game.TurnIndex)
	assert.Equal(t, "alice", room.activePlayer().Name)
}

func TestActivePlayerLeavingAbandonsRound(t *testing.T) {
	reg := testRegistry(t)
	s1, s2 := &sink{}, &sink{}

	code, aerr := reg.CreateRoom("c1", "alice", s1.add)
	require.Nil(t, aerr)
	_, aerr = reg.JoinRoom("c2", code, "bob", s2.add)
	require.Nil(t, aerr)

	room := reg.RoomFor("c1")
	require.Nil(t, room.StartGame("c1"))

	// Force a known card so the guess is submittable without audio.
	room.mu.Lock()
	card := sg("cur", 1985)
	room.game.CurrentCard = &card
	room.game.Phase = phasePlaying
	room.mu.Unlock()

	require.Nil(t, room.SubmitGuess("c1", 0, "", ""))
	require.Equal(t, phaseChallenging, room.game.Phase)

	reg.Leave("c1")

	room.mu.Lock()
	defer room.mu.Unlock()
	assert.Equal(t, phaseWaiting, room.game.Phase)
	assert.Nil(t, room.game.ActiveGuess)
	assert.Nil(t, room.game.challengeTimer)
	assert.Empty(t, room.game.Challenges)
	// The card stays on offer for the next player.
	assert.NotNil(t, room.game.CurrentCard)
	assert.Equal(t, "bob", room.activePlayer().Name)
}

func TestLeaverChallengeIsDropped(t *testing.T) {
	reg := testRegistry(t)
	sinks := map[string]*sink{}

	code := ""
	for i, name := range []string{"alice", "bob", "carol"} {
		s := &sink{}
		sinks[name] = s
		if i == 0 {
			c, aerr := reg.CreateRoom(conn(name), name, s.add)
			require.Nil(t, aerr)
			code = c
		} else {
			_, aerr := reg.JoinRoom(conn(name), code, name, s.add)
			require.Nil(t, aerr)
		}
	}

	room := reg.RoomFor(conn("alice"))
	require.Nil(t, room.StartGame(conn("alice")))

	room.mu.Lock()
	card := sg("cur", 1985)
	room.game.CurrentCard = &card
	room.game.Phase = phasePlaying
	room.mu.Unlock()

	require.Nil(t, room.SubmitGuess(conn("alice"), 0, "", ""))
	require.Nil(t, room.Challenge(conn("bob"), 1))

	reg.Leave(conn("bob"))

	room.mu.Lock()
	defer room.mu.Unlock()
	assert.Empty(t, room.game.Challenges)
	assert.False(t, room.game.tokenSpent["bob"])
	// The round itself survives; only the challenge is gone.
	assert.Equal(t, phaseChallenging, room.game.Phase)
	room.cancelChallengeTimerLocked()
}

func TestReaperClosesIdleRooms(t *testing.T) {
	cfg := testConfig()
	cfg.sessionTimeout = 40 * time.Millisecond

	songs := []Song{sg("s0", 1970), sg("s1", 1980), sg("s2", 1990)}
	reg := newRegistry(cfg, newResolver(cfg), songs)

	s := &sink{}
	_, aerr := reg.CreateRoom("c1", "alice", s.add)
	require.Nil(t, aerr)

	require.Eventually(t, func() bool {
		return reg.RoomFor("c1") == nil
	}, time.Second, 10*time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	closed := false
	for _, m := range s.msgs {
		if simple, ok := m.(SimpleMessage); ok && simple.Type == "room_closed" {
			closed = true
		}
	}
	assert.True(t, closed)
}
