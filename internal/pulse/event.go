// Package pulse holds the timing primitives of the keying recorder: recorded
// key-down intervals, their text form, and classification of button presses.
//
// Lines are sampled, not interrupt driven: each poll sees only the most
// recent raw edge of a line. A press that starts and ends entirely between
// two polls, for example during a blocking channel report or a confirm poll
// interval, is never observed.
package pulse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Delimiter separates the start and end fields of a record line.
const Delimiter = ','

var (
	// ErrMalformed indicates a record line that does not hold two integers.
	ErrMalformed = errors.New("malformed pulse record")
	// ErrInvalid indicates a record whose interval is not end > start >= 0.
	ErrInvalid = errors.New("invalid pulse interval")
)

// Event is one key-down interval in monotonic milliseconds.
type Event struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Valid reports whether end > start >= 0.
func (e Event) Valid() bool {
	return e.End > e.Start && e.Start >= 0
}

// Duration returns the key-down time in milliseconds.
func (e Event) Duration() int64 {
	return e.End - e.Start
}

// String returns the record form "<start>,<end>" without a line terminator.
func (e Event) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(e.Start, 10))
	b.WriteByte(Delimiter)
	b.WriteString(strconv.FormatInt(e.End, 10))
	return b.String()
}

// ParseEvent parses a record line. The line terminator, if still present, is
// ignored. A line that parses but fails Valid returns the event together with
// ErrInvalid.
func ParseEvent(line string) (Event, error) {
	line = strings.TrimRight(line, "\r\n")
	startText, endText, found := strings.Cut(line, string(Delimiter))
	if !found || startText == "" || endText == "" {
		return Event{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	if startText[0] == '+' || startText[0] == '-' {
		return Event{}, fmt.Errorf("%w: signed start %q", ErrMalformed, line)
	}

	start, err := strconv.ParseInt(startText, 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	end, err := strconv.ParseInt(endText, 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}

	e := Event{Start: start, End: end}
	if !e.Valid() {
		return e, fmt.Errorf("%w: %s", ErrInvalid, e)
	}
	return e, nil
}
