// Package markup parses the client's inline text formatting.
//
// The escape character is '|' followed by:
//
//	cAARRGGBB  set color (alpha ignored)
//	r          reset color
//	Hdata|h    open a hyperlink; the text up to the next |h is its name
//	h          close the open hyperlink; the name loses its [brackets]
//	Tdata|t    texture, dropped
//
// Any other follower leaves the '|' in the text.
package markup

import (
	"strings"
	"unicode/utf8"
)

const escape = '|'

// Color is an RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float32
}

// White is the color of links opened without an active color.
var White = Color{R: 1, G: 1, B: 1, A: 1}

// SegmentKind tells plain runs from object links.
type SegmentKind uint8

const (
	SegmentPlain SegmentKind = iota
	SegmentLink
)

// Segment is one run of message text. For links Text is the display name.
type Segment struct {
	Kind  SegmentKind
	Text  string
	Link  LinkType
	Color Color
}

func (s Segment) IsLink() bool { return s.Kind == SegmentLink }

// URL returns the lookup URL for a link segment and "" for plain text.
func (s Segment) URL() string {
	if !s.IsLink() {
		return ""
	}
	return s.Link.WowheadURL(s.Text)
}

// ParseSegments splits formatted text into plain runs and links.
func ParseSegments(raw string) []Segment {
	var (
		segs    []Segment
		text    strings.Builder
		color   Color
		colored bool

		link      LinkType
		pending   bool
		linkColor = White
	)

	flush := func() {
		if text.Len() > 0 {
			segs = append(segs, Segment{Kind: SegmentPlain, Text: text.String()})
			text.Reset()
		}
	}

	rs := []rune(raw)
	for i := 0; i < len(rs); {
		if rs[i] != escape || i+1 == len(rs) {
			text.WriteRune(rs[i])
			i++
			continue
		}

		switch rs[i+1] {
		case 'c', 'C':
			end := min(i+10, len(rs))
			if hex := rs[i+2 : end]; len(hex) == 8 {
				color, colored = parseColor(hex), true
			}
			i = end
		case 'r', 'R':
			colored = false
			i += 2
		case 'H':
			flush()
			var data string
			data, i = scanUntil(rs, i+2, 'h')
			link, pending = ClassifyLink(data), true
			linkColor = White
			if colored {
				linkColor = color
			}
		case 'h':
			if pending {
				name := trimBrackets(text.String())
				segs = append(segs, Segment{Kind: SegmentLink, Text: name, Link: link, Color: linkColor})
				text.Reset()
				pending = false
			}
			i += 2
		case 'T':
			_, i = scanUntil(rs, i+2, 't')
		default:
			text.WriteRune(escape)
			i++
		}
	}
	flush()
	return segs
}

// Strip removes all markup and keeps the literal text. Link names lose their
// surrounding brackets, so the result agrees with PlainText(ParseSegments(raw)).
func Strip(raw string) string {
	out := make([]byte, 0, len(raw))
	linkStart, pending := 0, false

	rs := []rune(raw)
	for i := 0; i < len(rs); {
		if rs[i] != escape || i+1 == len(rs) {
			out = utf8.AppendRune(out, rs[i])
			i++
			continue
		}

		switch rs[i+1] {
		case 'c', 'C':
			i = min(i+10, len(rs))
		case 'r', 'R':
			i += 2
		case 'H':
			_, i = scanUntil(rs, i+2, 'h')
			linkStart, pending = len(out), true
		case 'h':
			if pending {
				name := trimBrackets(string(out[linkStart:]))
				out = append(out[:linkStart], name...)
				pending = false
			}
			i += 2
		case 'T':
			_, i = scanUntil(rs, i+2, 't')
		default:
			out = append(out, escape)
			i++
		}
	}
	return string(out)
}

// PlainText concatenates the display text of segs.
func PlainText(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Text)
	}
	return b.String()
}

// trimBrackets drops one pair of surrounding brackets from a link name.
func trimBrackets(name string) string {
	if len(name) >= 2 && name[0] == '[' && name[len(name)-1] == ']' {
		return name[1 : len(name)-1]
	}
	return name
}

// scanUntil returns the runes from start up to "|term" and the index just
// past the terminator, or the rest of the input if there is none.
func scanUntil(rs []rune, start int, term rune) (string, int) {
	for j := start; j+1 < len(rs); j++ {
		if rs[j] == escape && rs[j+1] == term {
			return string(rs[start:j]), j + 2
		}
	}
	if start > len(rs) {
		start = len(rs)
	}
	return string(rs[start:]), len(rs)
}

// parseColor reads AARRGGBB; a bad pair falls back to full intensity.
func parseColor(hex []rune) Color {
	return Color{
		R: float32(hexByte(hex[2], hex[3])) / 255,
		G: float32(hexByte(hex[4], hex[5])) / 255,
		B: float32(hexByte(hex[6], hex[7])) / 255,
		A: 1,
	}
}

func hexByte(hi, lo rune) uint8 {
	h, ok1 := hexDigit(hi)
	l, ok2 := hexDigit(lo)
	if !ok1 || !ok2 {
		return 255
	}
	return h<<4 | l
}

func hexDigit(r rune) (uint8, bool) {
	switch {
	case r >= '0' && r <= '9':
		return uint8(r - '0'), true
	case r >= 'a' && r <= 'f':
		return uint8(r-'a') + 10, true
	case r >= 'A' && r <= 'F':
		return uint8(r-'A') + 10, true
	}
	return 0, false
}
