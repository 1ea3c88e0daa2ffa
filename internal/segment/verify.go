package segment

import (
	"fmt"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/UnamanoDAO/AI-IELTS/internal/tts"
)

// ContextWindow is the number of characters shown on each side of a
// divergence in a Report.
const ContextWindow = 20

// Report is the outcome of verifying a segmentation against its source.
type Report struct {
	OK          bool
	Count       int // number of segments
	SourceLen   int // characters in the source
	SegmentsLen int // sum of segment lengths, in characters

	// Divergence is the first character index where the joined segments
	// differ from the source, or -1.
	Divergence int
	Expected   string // source text around Divergence
	Actual     string // joined segment text around Divergence
	Reason     string
}

// Verify checks that segments reproduce source exactly: lengths add up, the
// concatenation matches character for character, and indices run 0..n-1.
func Verify(source string, segments []Segment) Report {
	return VerifyBounded(source, segments, 0)
}

// VerifyBounded is Verify plus a check that no segment is longer than max
// characters. A max of 0 disables the bound check.
func VerifyBounded(source string, segments []Segment, max int) Report {
	joined := Join(segments)
	r := Report{
		OK:        true,
		Count:     len(segments),
		SourceLen: utf8.RuneCountInString(source),
		SegmentsLen: lo.SumBy(segments, func(s Segment) int {
			return utf8.RuneCountInString(s.Text)
		}),
		Divergence: -1,
	}

	offset, bad := 0, -1
	for i, s := range segments {
		n := utf8.RuneCountInString(s.Text)
		switch {
		case s.Index != i:
			r.fail(fmt.Sprintf("segment at position %d has index %d", i, s.Index))
		case n == 0:
			r.fail(fmt.Sprintf("segment %d is empty", i))
		case s.Len != n:
			r.fail(fmt.Sprintf("segment %d reports length %d but holds %d characters", i, s.Len, n))
		case s.Start != offset:
			r.fail(fmt.Sprintf("segment %d starts at %d, expected %d", i, s.Start, offset))
		case max > 0 && n > max:
			r.fail(fmt.Sprintf("segment %d has %d characters, limit is %d", i, n, max))
		}
		if !r.OK {
			bad = i
			break
		}
		offset += n
	}

	if r.OK && r.SegmentsLen != r.SourceLen {
		r.fail(fmt.Sprintf("segments hold %d characters, source has %d", r.SegmentsLen, r.SourceLen))
	}

	// A text divergence wins over the segment that failed first.
	if d, ok := firstDivergence(source, joined); ok {
		r.fail(fmt.Sprintf("joined segments differ from source at character %d", d))
		r.Divergence = d
		r.Expected = around(source, d, ContextWindow)
		r.Actual = around(joined, d, ContextWindow)
		return r
	}

	// The text matches, so only the segment's own fields are wrong. Show
	// the source range it claims next to the text it holds.
	if !r.OK && bad >= 0 {
		s := segments[bad]
		r.Divergence = offset
		r.Expected = span(source, s.Start, min(s.Len, 2*ContextWindow))
		r.Actual = span(s.Text, 0, 2*ContextWindow)
	}
	return r
}

func (r *Report) fail(reason string) {
	if r.OK {
		r.OK = false
		r.Reason = reason
	}
}

// Err returns nil for a passing report and an integrity violation otherwise.
func (r Report) Err() error {
	if r.OK {
		return nil
	}
	return tts.NewError(tts.ErrorCodeIntegrityViolation, r.Reason, nil).
		WithContext("divergence", r.Divergence).
		WithContext("expected", r.Expected).
		WithContext("actual", r.Actual).
		WithContext("source_len", r.SourceLen).
		WithContext("segments_len", r.SegmentsLen)
}

// String summarizes the report on one line.
func (r Report) String() string {
	if r.OK {
		return fmt.Sprintf("ok: %d segments, %d characters", r.Count, r.SourceLen)
	}
	return fmt.Sprintf("integrity violation at character %d: %s (expected %q, got %q)",
		r.Divergence, r.Reason, r.Expected, r.Actual)
}

// firstDivergence returns the first character index where a and b differ.
// Characters are compared as raw byte sequences so invalid UTF-8 is exact.
func firstDivergence(a, b string) (int, bool) {
	i, j, k := 0, 0, 0
	for i < len(a) && j < len(b) {
		_, wa := utf8.DecodeRuneInString(a[i:])
		_, wb := utf8.DecodeRuneInString(b[j:])
		if a[i:i+wa] != b[j:j+wb] {
			return k, true
		}
		i += wa
		j += wb
		k++
	}
	if i < len(a) || j < len(b) {
		return k, true
	}
	return -1, false
}

// around returns up to w characters on each side of character index at.
func around(s string, at, w int) string {
	from, to := at-w, at+w
	if from < 0 {
		from = 0
	}
	start, end := len(s), len(s)
	k := 0
	for i := range s {
		if k == from {
			start = i
		}
		if k == to {
			end = i
			break
		}
		k++
	}
	if start > end {
		return ""
	}
	return s[start:end]
}

// span returns up to n characters of s starting at character index from.
func span(s string, from, n int) string {
	if from < 0 {
		from = 0
	}
	if n <= 0 {
		return ""
	}
	start, end := len(s), len(s)
	k := 0
	for i := range s {
		if k == from {
			start = i
		}
		if k == from+n {
			end = i
			break
		}
		k++
	}
	if start > end {
		return ""
	}
	return s[start:end]
}
