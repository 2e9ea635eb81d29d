// Package scanner implements an incremental tag-aware text scanner. It
// classifies a logical text stream, delivered in arbitrarily-sized chunks,
// into plain segments and tagged regions (code, output), and recognizes a
// standalone end-of-reasoning marker. Markers split across chunk boundaries
// are never leaked: the scanner holds back the longest trailing fragment
// that could still become a recognized marker.
package scanner

import "strings"

// Region is the semantic classification assigned to scanned text.
type Region string

const (
	RegionNone   Region = ""
	RegionCode   Region = "code"
	RegionOutput Region = "output"
)

// Tag names recognized by the scanner.
const (
	TagCode   = "code"
	TagOutput = "output"
	TagThink  = "think"
)

// EventKind discriminates scanner events.
type EventKind int

const (
	// EventText is a classified text segment.
	EventText EventKind = iota
	// EventTag is a complete recognized marker.
	EventTag
)

// Event is a single scanner output. For EventText, Text is the segment and
// Region the classification it was emitted under. For EventTag, Text holds
// the raw marker bytes (e.g. "</code>"), Tag the tag name, and Closing
// whether it was a closing marker. Concatenating the Text of every event,
// in order, plus the pending buffer reproduces every byte fed so far.
type Event struct {
	Kind    EventKind
	Text    string
	Region  Region
	Tag     string
	Closing bool
}

// markers is the fixed recognition vocabulary. code and output are paired
// region delimiters; </think> is a standalone end-of-reasoning marker that
// does not affect the region state.
var markers = []struct {
	raw     string
	tag     string
	closing bool
}{
	{"<code>", TagCode, false},
	{"</code>", TagCode, true},
	{"<output>", TagOutput, false},
	{"</output>", TagOutput, true},
	{"</think>", TagThink, true},
}

// Scanner incrementally classifies one logical text stream. It holds no
// global state; create one per stream and do not share across goroutines.
type Scanner struct {
	pending string
	region  Region
}

// New returns a scanner positioned outside any region.
func New() *Scanner {
	return &Scanner{}
}

// Region returns the region currently enclosing emitted plain text.
func (s *Scanner) Region() Region { return s.region }

// Pending returns the held-back buffer: bytes that might be the start of a
// not-yet-complete marker.
func (s *Scanner) Pending() string { return s.pending }

// Feed appends chunk to the unconsumed input and returns all events that can
// be emitted without risk of splitting a marker. The trailing fragment of a
// plausible partial marker stays buffered for the next call.
func (s *Scanner) Feed(chunk string) []Event {
	data := s.pending + chunk
	s.pending = ""

	var events []Event
	start := 0 // beginning of unemitted text
	pos := 0   // scan position

	for {
		idx := strings.IndexByte(data[pos:], '<')
		if idx < 0 {
			// No marker-start remains: everything is safe to flush.
			if start < len(data) {
				events = append(events, Event{Kind: EventText, Text: data[start:], Region: s.region})
			}
			return events
		}
		at := pos + idx

		raw, tag, closing, state := matchMarker(data[at:])
		switch state {
		case matchComplete:
			if at > start {
				events = append(events, Event{Kind: EventText, Text: data[start:at], Region: s.region})
			}
			events = append(events, Event{Kind: EventTag, Text: raw, Tag: tag, Closing: closing})
			switch tag {
			case TagCode, TagOutput:
				if closing {
					s.region = RegionNone
				} else {
					s.region = Region(tag)
				}
			}
			start = at + len(raw)
			pos = start
		case matchPartial:
			// Could still become a marker: flush the text before it and
			// hold everything from the '<' onward.
			if at > start {
				events = append(events, Event{Kind: EventText, Text: data[start:at], Region: s.region})
			}
			s.pending = data[at:]
			return events
		default:
			// This '<' cannot start any recognized marker; treat it as
			// plain text and keep scanning after it.
			pos = at + 1
		}
	}
}

// Flush releases whatever remains buffered as plain text in the active
// region. Call it at end of stream so a malformed or never-completed marker
// degrades to text instead of being lost.
func (s *Scanner) Flush() []Event {
	if s.pending == "" {
		return nil
	}
	ev := Event{Kind: EventText, Text: s.pending, Region: s.region}
	s.pending = ""
	return []Event{ev}
}

type matchState int

const (
	matchNone matchState = iota
	matchPartial
	matchComplete
)

// matchMarker inspects a buffer beginning with '<'. It reports a complete
// recognized marker, a plausible partial one (the buffer is a proper prefix
// of some marker), or no possible match.
func matchMarker(s string) (raw, tag string, closing bool, state matchState) {
	partial := false
	for _, m := range markers {
		if strings.HasPrefix(s, m.raw) {
			return m.raw, m.tag, m.closing, matchComplete
		}
		if len(s) < len(m.raw) && strings.HasPrefix(m.raw, s) {
			partial = true
		}
	}
	if partial {
		return "", "", false, matchPartial
	}
	return "", "", false, matchNone
}
