package analysis

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Kind classifies a peer log line.
type Kind int

const (
	KindOther Kind = iota
	KindPublish
	KindReceive
	KindConnect
	KindIdentity
)

func (k Kind) String() string {
	switch k {
	case KindPublish:
		return "publish"
	case KindReceive:
		return "receive"
	case KindConnect:
		return "connect"
	case KindIdentity:
		return "identity"
	}
	return "other"
}

// Event is one classified log line.
type Event struct {
	Kind Kind
	// Stamp is the raw bracketed timestamp, empty when the line has none.
	Stamp string
	// Value is the token a detector extracted, such as a peer identifier.
	Value string
}

type detector struct {
	kind  Kind
	match func(line string) (string, bool)
}

// marker matches lines containing m and, when re is set, extracts its
// first group as the event value.
func marker(m string, re *regexp.Regexp) func(string) (string, bool) {
	return func(line string) (string, bool) {
		if !strings.Contains(line, m) {
			return "", false
		}
		if re == nil {
			return "", true
		}
		if g := re.FindStringSubmatch(line); g != nil {
			return g[1], true
		}
		return "", true
	}
}

// Detectors run in order and the first match wins, so a received payload
// that happens to contain "ID:" is still a receipt.
var detectors = []detector{
	{KindPublish, marker("published message to topic", nil)},
	{KindReceive, marker("Received message from", regexp.MustCompile(`Received message from (\S+?):?(?:\s|$)`))},
	{KindConnect, marker("connected to peer:", regexp.MustCompile(`connected to peer: (\S+)`))},
	{KindIdentity, marker("ID:", regexp.MustCompile(`ID: (\S+)`))},
}

var stampRe = regexp.MustCompile(`^\[(.*?)\]`)

// Classify returns the event a line represents.
func Classify(line string) Event {
	ev := Event{}
	if m := stampRe.FindStringSubmatch(line); m != nil {
		ev.Stamp = m[1]
	}
	for _, d := range detectors {
		if v, ok := d.match(line); ok {
			ev.Kind = d.kind
			ev.Value = v
			return ev
		}
	}
	return ev
}

// ErrNoTimestamp is returned for lines without a bracketed timestamp.
var ErrNoTimestamp = errors.New("no timestamp")

var layouts = []string{
	"2006-01-02T15:04:05.000000Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses an ISO-8601 style stamp. Fractional seconds are
// padded or truncated to microseconds; a stamp without zone is UTC.
func ParseTimestamp(stamp string) (time.Time, error) {
	if stamp == "" {
		return time.Time{}, ErrNoTimestamp
	}
	s := normalize(stamp)
	var err error
	for _, layout := range layouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

func normalize(s string) string {
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return s
	}
	rest := s[dot+1:]
	n := 0
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
		n++
	}
	frac := (rest[:n] + "000000")[:6]
	return s[:dot+1] + frac + rest[n:]
}
