// Package nmea decodes NMEA-0183 text lines and extracts typed values from the
// sentence types a waypoint is assembled from (RMC, VTG, GGA, GLL).
//
// Everything in this package is pure: no I/O, no shared state.
package nmea

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEmptyLine is returned for blank lines (typically a read timeout on the transport).
	ErrEmptyLine = errors.New("nmea: empty line")
	// ErrUndecodable is returned when the line is not valid text.
	ErrUndecodable = errors.New("nmea: undecodable line")
	// ErrNotSentence is returned when the text does not look like an NMEA sentence.
	ErrNotSentence = errors.New("nmea: not a sentence")
)

// Kind is the closed set of sentence types the assembler knows about.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindRMC
	KindVTG
	KindGGA
	KindGLL
)

func (k Kind) String() string {
	switch k {
	case KindRMC:
		return "RMC"
	case KindVTG:
		return "VTG"
	case KindGGA:
		return "GGA"
	case KindGLL:
		return "GLL"
	default:
		return "unrecognized"
	}
}

func kindOf(typ string) Kind {
	switch typ {
	case "RMC":
		return KindRMC
	case "VTG":
		return KindVTG
	case "GGA":
		return KindGGA
	case "GLL":
		return KindGLL
	default:
		return KindUnrecognized
	}
}

// Sentence is one decoded line.
type Sentence struct {
	// ID is the identifier without the leading '$', e.g. "GNRMC".
	ID     string
	Talker string
	Type   string
	Kind   Kind
	// Fields is the comma-split payload with the checksum suffix removed.
	// Fields[0] is the identifier as received (including '$').
	Fields []string
	// Raw is the decoded line, whitespace trimmed, checksum included.
	Raw string
}

// Field returns the i-th field, or "" when the sentence is too short.
func (s Sentence) Field(i int) string {
	if i < 0 || i >= len(s.Fields) {
		return ""
	}
	return s.Fields[i]
}

// Clone returns a copy that shares no memory with s.
func (s Sentence) Clone() Sentence {
	out := s
	out.Fields = append([]string(nil), s.Fields...)
	return out
}

// DefaultTalkers is the combined-constellation talker emitted by multi-GNSS receivers.
var DefaultTalkers = []string{"GN"}

// Decoder turns raw lines into sentences. The zero value accepts DefaultTalkers.
type Decoder struct {
	talkers map[string]bool
}

// NewDecoder returns a decoder that resolves known kinds only for the given talkers.
// Sentences from other talkers decode fine but are KindUnrecognized.
func NewDecoder(talkers ...string) Decoder {
	if len(talkers) == 0 {
		talkers = DefaultTalkers
	}
	m := make(map[string]bool, len(talkers))
	for _, t := range talkers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			m[t] = true
		}
	}
	return Decoder{talkers: m}
}

func (d Decoder) accepts(talker string) bool {
	if d.talkers == nil {
		for _, t := range DefaultTalkers {
			if t == talker {
				return true
			}
		}
		return false
	}
	return d.talkers[talker]
}

// Decode decodes one line. No checksum verification is performed; everything
// after the first '*' is dropped.
func (d Decoder) Decode(line []byte) (Sentence, error) {
	if !utf8.Valid(line) {
		return Sentence{}, fmt.Errorf("%w: %q", ErrUndecodable, line)
	}
	text := strings.TrimSpace(string(line))
	if text == "" {
		return Sentence{}, ErrEmptyLine
	}
	if !strings.HasPrefix(text, "$") {
		return Sentence{}, fmt.Errorf("%w: missing '$': %q", ErrNotSentence, text)
	}

	payload, _, _ := strings.Cut(text, "*")
	fields := strings.Split(payload, ",")
	id := strings.ToUpper(strings.TrimPrefix(fields[0], "$"))
	if len(id) < 3 {
		return Sentence{}, fmt.Errorf("%w: short identifier: %q", ErrNotSentence, text)
	}

	s := Sentence{ID: id, Fields: fields, Raw: text}
	if len(id) >= 5 {
		s.Talker = id[:2]
		s.Type = id[2:]
	} else {
		s.Type = id
	}
	if d.accepts(s.Talker) {
		s.Kind = kindOf(s.Type)
	}
	return s, nil
}

// Decode decodes with the default talker set.
func Decode(line []byte) (Sentence, error) {
	return Decoder{}.Decode(line)
}
