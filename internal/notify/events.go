package notify

import (
	"fmt"
	"strings"
)

// Event names a phase transition. Events carry no payload; clients re-fetch.
type Event string

const (
	EventPlayersReady     Event = "players-ready"
	EventGuessesSubmitted Event = "guesses-submitted"
	// EventNextRound follows every advanceRound, including the one that
	// completes the session. Clients check completed on the refetched state.
	EventNextRound Event = "next-round"
)

// Valid reports whether e is one of the known transitions.
func (e Event) Valid() bool {
	switch e {
	case EventPlayersReady, EventGuessesSubmitted, EventNextRound:
		return true
	}
	return false
}

const channelPrefix = "session:"

// ChannelPattern matches every session channel.
const ChannelPattern = channelPrefix + "*"

// Channel is the pub/sub channel for one session's event.
func Channel(sessionID string, event Event) string {
	return fmt.Sprintf("%s%s:%s", channelPrefix, sessionID, event)
}

// ParseChannel splits a channel name back into session id and event.
func ParseChannel(channel string) (string, Event, error) {
	rest, ok := strings.CutPrefix(channel, channelPrefix)
	if !ok {
		return "", "", fmt.Errorf("channel %q has no session prefix", channel)
	}
	i := strings.LastIndex(rest, ":")
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("channel %q is malformed", channel)
	}
	event := Event(rest[i+1:])
	if !event.Valid() {
		return "", "", fmt.Errorf("channel %q has unknown event %q", channel, event)
	}
	return rest[:i], event, nil
}
