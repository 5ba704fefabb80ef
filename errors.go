/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"log"
	"strings"
	"time"
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

// FailCode identifies why a game action was rejected. Codes are stable
// strings so clients can branch on them without parsing messages.
type FailCode string

const (
	errRoomNotFound    FailCode = "room_not_found"
	errNameRequired    FailCode = "name_required"
	errNameTaken       FailCode = "name_taken"
	errRoomFull        FailCode = "room_full"
	errSingleplayer    FailCode = "singleplayer"
	errNotHost         FailCode = "not_host"
	errNotStarted      FailCode = "not_started"
	errAlreadyStarted  FailCode = "already_started"
	errNotYourTurn     FailCode = "not_your_turn"
	errWrongPhase      FailCode = "wrong_phase"
	errNoCard          FailCode = "no_card"
	errNoTokens        FailCode = "insufficient_tokens"
	errDeckEmpty       FailCode = "deck_empty"
	errNotEnoughSongs  FailCode = "not_enough_songs"
	errNoPlayableMedia FailCode = "no_playable_media"
	errSlotReserved    FailCode = "slot_reserved"
	errSlotTaken       FailCode = "slot_taken"
	errGameFinished    FailCode = "game_finished"
)

// ActionError is the failure half of every game action result. Actions
// never mutate state when returning one, and never panic across the
// action boundary.
type ActionError struct {
	Code FailCode
	Msg  string
}

func (e *ActionError) Error() string {
	return e.Msg
}

func fail(code FailCode, format string, args ...any) *ActionError {
	return &ActionError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
