package proposal

import (
	"strconv"
	"strings"
	"time"
)

// BranchOptions shapes generated branch names.
type BranchOptions struct {
	// Prefix starts every branch name (e.g. "usulan/").
	Prefix string
	// MaxSegmentLength caps each sanitized segment.
	// Zero means no cap.
	MaxSegmentLength int
	// EmptySegment replaces a segment that sanitizes to
	// nothing. Empty keeps the empty segment.
	EmptySegment string
}

// Sanitize turns free text into a ref-safe identifier:
// lower-case, whitespace runs become a single hyphen, and
// anything outside [a-z0-9-] is dropped. The result may be
// empty.
func Sanitize(text string) string {
	var sb strings.Builder

	inSpace := false

	for _, r := range strings.ToLower(text) {
		if isSpace(r) {
			if !inSpace {
				sb.WriteByte('-')
			}

			inSpace = true

			continue
		}

		inSpace = false

		if isAllowed(r) {
			sb.WriteRune(r)
		}
	}

	return sb.String()
}

// isSpace matches the ECMAScript WhiteSpace and
// LineTerminator set. U+0085 is not part of it and U+FEFF
// is.
func isSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ',
		'\u00a0', '\u1680', '\u2028', '\u2029',
		'\u202f', '\u205f', '\u3000', '\ufeff':
		return true
	}

	return r >= '\u2000' && r <= '\u200a'
}

func isAllowed(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= '0' && r <= '9') ||
		r == '-'
}

// BranchName returns
// <prefix><language>-<word>-<epoch millis> for req.
func BranchName(
	opts BranchOptions,
	req Request,
	now time.Time,
) string {
	return opts.Prefix +
		segment(opts, req.Bahasa) + "-" +
		segment(opts, req.Kata) + "-" +
		strconv.FormatInt(now.UnixMilli(), 10)
}

func segment(opts BranchOptions, text string) string {
	seg := Sanitize(text)
	if seg == "" {
		seg = Sanitize(opts.EmptySegment)
	}

	// Sanitized output is ASCII, byte slicing is safe.
	if opts.MaxSegmentLength > 0 &&
		len(seg) > opts.MaxSegmentLength {
		seg = seg[:opts.MaxSegmentLength]
	}

	return seg
}
