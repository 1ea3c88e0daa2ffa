// Package segment splits long text into ordered, bounded segments for speech
// synthesis and verifies that a segmentation lost nothing.
//
// Segments are cut at sentence terminators where possible. A sentence that is
// longer than the limit on its own is cut after a weak separator (space, comma,
// semicolon) found near the limit, or hard-cut at the limit. Concatenating the
// segments in index order always reproduces the source byte for byte.
package segment
