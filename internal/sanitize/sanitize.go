// Package sanitize strips citation markers from assistant output and
// normalizes JSON answers.
package sanitize

import (
	"regexp"
)

var (
	// sourceTagPattern matches bracket-enclosed source tags such as 【3†source】.
	// Brackets do not nest: "a【【1†source】】b" becomes "a】b".
	sourceTagPattern = regexp.MustCompile(`【[^】]*】`)

	// footnotePattern matches footnote evidence tags such as [4:0†source] or [^2^].
	footnotePattern = regexp.MustCompile(`\[(?:\^\d+\^|\d+(?::\d+)?†[^\]\n]*)\]`)
)

// maxPasses bounds the fixed-point loop in Text.
const maxPasses = 8

// Text removes citation markers from s and leaves everything else,
// including surrounding whitespace, untouched. Removal is repeated until
// nothing changes, so Text(Text(s)) == Text(s).
func Text(s string) string {
	for range maxPasses {
		next := footnotePattern.ReplaceAllString(sourceTagPattern.ReplaceAllString(s, ""), "")
		if next == s {
			return s
		}
		s = next
	}
	return s
}

// JSON parses s as JSON, strips markers from every string value and
// re-serializes it with stable key order and indentation. Keys, array
// order and non-ASCII text are preserved. If s is not valid JSON it is
// returned verbatim with ok=false.
func JSON(s string) (out string, ok bool) {
	v, err := Parse(s)
	if err != nil {
		return s, false
	}
	normalized, err := Marshal(Strip(v))
	if err != nil {
		return s, false
	}
	return normalized, true
}

// Response cleans an assistant answer: JSON answers are normalized by
// JSON, anything else has its markers removed by Text.
func Response(s string) string {
	if out, ok := JSON(s); ok {
		return out
	}
	return Text(s)
}

// Strip removes markers from every string in a parsed JSON value, in place.
// Object keys are left unchanged.
func Strip(v any) any {
	switch vv := v.(type) {
	case string:
		return Text(vv)
	case *Object:
		for _, k := range vv.keys {
			vv.values[k] = Strip(vv.values[k])
		}
		return vv
	case []any:
		for i := range vv {
			vv[i] = Strip(vv[i])
		}
		return vv
	default:
		return v
	}
}

var fencePattern = regexp.MustCompile("(?s)^\\s*```[A-Za-z]*\\s*\\n(.*?)\\n?\\s*```\\s*$")

// Unfence returns the body of a markdown code fence wrapping all of s,
// or s unchanged when it is not fenced.
func Unfence(s string) string {
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}
