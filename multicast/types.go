package multicast

/*
Messages and Core Identity

A message is an opaque payload string. Messages submitted through a node
follow the form

	Msg#<counter> from <origin>[: <text>] at <HH:MM:SS.mmm>

Core identity:
	The "Msg#<counter> from <origin>" prefix. Origin plus the per-node
	submission counter is unique cluster-wide, so the same message seen as
	RAW and again inside a SEQ broadcast maps to the same identity.
	The trailing " at <time>" is display metadata and never part of identity.

	A payload that does not follow the form is its own identity.
*/

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the presentation timestamp appended to submitted messages.
const TimestampLayout = "15:04:05.000"

const timestampMarker = " at "

// Identity is the identity-bearing part of a message.
type Identity string

// Message is a payload travelling through the protocol.
type Message struct {
	Payload string `json:"payload"`
}

var (
	identityRegex  = regexp.MustCompile(`(?s)^(Msg#(\d+) from ([^:]+?))(?:: .*)?(?: at \d{2}:\d{2}:\d{2}(?:\.\d{1,3})?)?$`)
	timestampRegex = regexp.MustCompile(` at \d{2}:\d{2}:\d{2}(\.\d{1,3})?$`)
)

// NewMessage formats a submission from origin. An empty text yields the
// bare "Msg#<n> from <origin> at <time>" form.
func NewMessage(origin string, counter uint64, text string, at time.Time) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Msg#%d from %s", counter, origin)
	if text != "" {
		b.WriteString(": ")
		b.WriteString(text)
	}
	b.WriteString(timestampMarker)
	b.WriteString(at.Format(TimestampLayout))
	return Message{Payload: b.String()}
}

// Identity returns the message's core identity.
func (m Message) Identity() Identity {
	if match := identityRegex.FindStringSubmatch(m.Payload); match != nil {
		return Identity(match[1])
	}
	return Identity(m.Payload)
}

// Origin returns the submitting node and its counter, if the payload carries them.
func (m Message) Origin() (origin string, counter uint64, ok bool) {
	match := identityRegex.FindStringSubmatch(m.Payload)
	if match == nil {
		return "", 0, false
	}
	n, err := strconv.ParseUint(match[2], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return match[3], n, true
}

// Display strips the presentation timestamp suffix.
func (m Message) Display() string {
	if loc := timestampRegex.FindStringIndex(m.Payload); loc != nil && loc[0] > 0 {
		return m.Payload[:loc[0]]
	}
	return m.Payload
}

func (m Message) String() string {
	return m.Payload
}
