package segment

import (
	"iter"
	"strings"
)

// Segment is a contiguous piece of the source text.
type Segment struct {
	Index int    // position in the output sequence, from 0
	Text  string // exact bytes of the source
	Start int    // offset of the first character in the source, in characters
	Len   int    // length in characters
}

// End returns the character offset just past the segment.
func (s Segment) End() int {
	return s.Start + s.Len
}

// Split returns the segments of text under cfg. Empty text yields no segments.
func Split(text string, cfg Config) ([]Segment, error) {
	seq, err := Segments(text, cfg)
	if err != nil {
		return nil, err
	}
	var out []Segment
	for s := range seq {
		out = append(out, s)
	}
	return out, nil
}

// Segments returns the segments of text under cfg as a lazy sequence. The
// configuration is validated up front; the sequence itself cannot fail.
// Each range over the sequence scans text again from the start.
func Segments(text string, cfg Config) (iter.Seq[Segment], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return func(yield func(Segment) bool) {
		newSplitter(text, cfg).run(yield)
	}, nil
}

// Join concatenates segment texts in slice order.
func Join(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// splitter holds one scan over a source string. Positions are character
// indexes; offs maps them back to byte offsets so the source bytes are
// sliced, never re-encoded. Invalid UTF-8 bytes count as one character each.
type splitter struct {
	text  string
	runes []rune
	offs  []int // len(runes)+1 entries, offs[len(runes)] == len(text)

	max    int
	window int
	strong map[rune]struct{}
	weak   map[rune]struct{}

	next int // index of the next segment to emit
}

func newSplitter(text string, cfg Config) *splitter {
	sp := &splitter{
		text:   text,
		runes:  make([]rune, 0, len(text)),
		offs:   make([]int, 0, len(text)+1),
		max:    cfg.MaxLength,
		window: cfg.LookbackWindow,
		strong: runeSet(cfg.Boundaries),
		weak:   runeSet(cfg.WeakBoundaries),
	}
	for i, r := range text {
		sp.runes = append(sp.runes, r)
		sp.offs = append(sp.offs, i)
	}
	sp.offs = append(sp.offs, len(text))
	return sp
}

func runeSet(chars string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(chars))
	for _, r := range chars {
		set[r] = struct{}{}
	}
	return set
}

func (sp *splitter) run(yield func(Segment) bool) {
	n := len(sp.runes)
	if n == 0 {
		return
	}
	if n <= sp.max {
		sp.emit(yield, 0, n)
		return
	}

	// The buffer is always the range [bufStart, pieceStart).
	bufStart := 0
	for pieceStart := 0; pieceStart < n; {
		pieceEnd := sp.pieceEnd(pieceStart)

		if pieceEnd-bufStart <= sp.max {
			pieceStart = pieceEnd
			continue
		}

		if pieceStart > bufStart {
			if !sp.emit(yield, bufStart, pieceStart) {
				return
			}
		}

		start := pieceStart
		for pieceEnd-start > sp.max {
			cut := sp.forceCut(start)
			if !sp.emit(yield, start, cut) {
				return
			}
			start = cut
		}
		bufStart = start
		pieceStart = pieceEnd
	}

	if bufStart < n {
		sp.emit(yield, bufStart, n)
	}
}

// pieceEnd returns the index just past the next strong boundary at or after
// start, or the end of the text.
func (sp *splitter) pieceEnd(start int) int {
	for i := start; i < len(sp.runes); i++ {
		if _, ok := sp.strong[sp.runes[i]]; ok {
			return i + 1
		}
	}
	return len(sp.runes)
}

// forceCut picks where to cut an oversized piece beginning at start. It looks
// back from the limit across the window for a weak separator and cuts just
// after it; without one it cuts exactly at the limit.
func (sp *splitter) forceCut(start int) int {
	limit := start + sp.max
	for i := limit - 1; i >= limit-sp.window && i >= start; i-- {
		if _, ok := sp.weak[sp.runes[i]]; ok {
			return i + 1
		}
	}
	return limit
}

func (sp *splitter) emit(yield func(Segment) bool, start, end int) bool {
	s := Segment{
		Index: sp.next,
		Text:  sp.text[sp.offs[start]:sp.offs[end]],
		Start: start,
		Len:   end - start,
	}
	sp.next++
	return yield(s)
}
