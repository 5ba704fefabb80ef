package games

// Each player builds a personal timeline of songs, ordered by release year
// On their turn, a hidden song is played, and the player chooses where it belongs in their timeline
// If the placement is correct, they keep the card; bonus token if they also name the title and artist
// Other players can stake a token on a different slot to steal the card if the active player is wrong
// Card is discarded if nobody picked a correct slot
// Longest timeline when the deck runs out wins

// Token economy:
// - Everyone starts with 2 tokens
// - Swap the current card for the next one: 1 token
// - Buy the current card outright, unheard: 3 tokens
// - Challenge a placement: 1 token (retargeting the challenge is free)
// - Correct placement plus correct title plus correct artist: earn 1 token

// Implementation details:
// - One websocket per connection, rooms joined by 5-char code
// - Server owns all game state; clients render the latest snapshot
// - Challenge window is a server-side timer, cancelable when everyone acts early
// - Media identifiers resolved from the song's search query, cached per query

// How to play
// - Create a room and share the code (or the QR link), or play solo
// - Host starts the game once everyone has joined
// - Active player presses play, listens, and places the card
// - Everyone else gets 15 seconds to challenge before the reveal
