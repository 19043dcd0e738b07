// Package jsonpath implements the JSON Path component (spec §4.G): parsing a dotted/
// bracketed path string into a reusable accessor that can read or write a nested value.
//
// It is built on github.com/itchyny/gojq, a jq engine capable of running ad-hoc queries
// against arbitrary decoded JSON payloads. A parsed Path here compiles to two cached jq
// programs: a get program
// (the path itself, e.g. ".a.b[2].c") and a set program parameterized by a jq variable
// (".a.b[2].c = $v"). Using jq's own assignment operator for Set is not a convenience
// shortcut: jq's path-assignment auto-vivifies missing intermediate objects and extends
// arrays with nulls exactly the way the spec requires ("out-of-range or missing
// intermediate objects are materialized on set"), so the component does not need to
// hand-roll that materialization logic.
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"
)

// Path is a parsed, reusable path accessor.
type Path struct {
	raw      string
	segments []segment
	getCode  *gojq.Code
	setCode  *gojq.Code
}

type segment struct {
	key   string
	index int
	isIdx bool
}

// Parse parses a dotted/bracketed path string such as "a.b[2].c" or "[0].name" into a
// reusable Path. An empty string parses to the root path (Get returns the whole document,
// Set replaces it).
func Parse(path string) (*Path, error) {
	segments, err := parseSegments(path)
	if err != nil {
		return nil, fmt.Errorf("jsonpath: parse %q: %w", path, err)
	}

	jqPath := buildJQPath(segments)

	getQuery, err := gojq.Parse(jqPath)
	if err != nil {
		return nil, fmt.Errorf("jsonpath: build get query for %q: %w", path, err)
	}
	getCode, err := gojq.Compile(getQuery)
	if err != nil {
		return nil, fmt.Errorf("jsonpath: compile get query for %q: %w", path, err)
	}

	setQuery, err := gojq.Parse(jqPath + " = $v")
	if err != nil {
		return nil, fmt.Errorf("jsonpath: build set query for %q: %w", path, err)
	}
	setCode, err := gojq.Compile(setQuery, gojq.WithVariables([]string{"$v"}))
	if err != nil {
		return nil, fmt.Errorf("jsonpath: compile set query for %q: %w", path, err)
	}

	return &Path{
		raw:      path,
		segments: segments,
		getCode:  getCode,
		setCode:  setCode,
	}, nil
}

// String returns the original path string.
func (p *Path) String() string { return p.raw }

// IsRoot reports whether this Path refers to the whole document.
func (p *Path) IsRoot() bool { return len(p.segments) == 0 }

// Get reads the value at this path within root. ok is false only when jq reports an error
// while walking the path (e.g. indexing a field of a string). A missing key or an
// out-of-range index yields (nil, true), the same result as a present null; Get does not
// tell the two apart.
func (p *Path) Get(root any) (value any, ok bool) {
	iter := p.getCode.Run(root)
	result, hasResult := iter.Next()
	if !hasResult {
		return nil, false
	}
	if _, isErr := result.(error); isErr {
		// Indexing into a value that is not a container (e.g. "a.b" where "a" is a
		// string) is reported by jq as a runtime error; treated here as "path does not
		// resolve".
		return nil, false
	}
	if result == nil {
		// jq yields null both for a missing key or out-of-range index and for a present
		// null; both report as (nil, true).
		return nil, true
	}
	return result, true
}

// Set returns a new root with the value at this path replaced by value, materializing any
// missing intermediate objects/arrays along the way. It does not mutate root in place;
// gojq's update operators are copy-on-write, which is also what gives the Record Engine's
// beginChange/completeChange snapshots (§4.F) their isolation from the mutation they
// bracket.
func (p *Path) Set(root any, value any) (any, error) {
	iter := p.setCode.Run(root, value)
	result, hasResult := iter.Next()
	if !hasResult {
		return nil, fmt.Errorf("jsonpath: set %q produced no result", p.raw)
	}
	if err, isErr := result.(error); isErr {
		return nil, fmt.Errorf("jsonpath: set %q: %w", p.raw, err)
	}
	return result, nil
}

// parseSegments tokenizes a mixed dotted/bracketed path string into segments. Numeric
// bracket contents ("[2]") are index segments; anything else (a bare dotted name, or a
// quoted/bare bracket key) is a field segment.
func parseSegments(path string) ([]segment, error) {
	var segments []segment
	i := 0
	n := len(path)

	for i < n {
		switch {
		case path[i] == '.':
			i++
		case path[i] == '[':
			end := strings.IndexByte(path[i:], ']')
			if end == -1 {
				return nil, fmt.Errorf("unterminated '[' at offset %d", i)
			}
			end += i
			inner := path[i+1 : end]
			if idx, err := strconv.Atoi(inner); err == nil {
				segments = append(segments, segment{isIdx: true, index: idx})
			} else {
				segments = append(segments, segment{key: strings.Trim(inner, `"'`)})
			}
			i = end + 1
		default:
			start := i
			for i < n && path[i] != '.' && path[i] != '[' {
				i++
			}
			key := path[start:i]
			if key == "" {
				return nil, fmt.Errorf("empty segment at offset %d", start)
			}
			segments = append(segments, segment{key: key})
		}
	}

	return segments, nil
}

// buildJQPath renders segments as a jq path expression, e.g. [{key:"a"},{idx:2}] -> ".a[2]".
func buildJQPath(segments []segment) string {
	if len(segments) == 0 {
		return "."
	}

	var b strings.Builder
	for _, seg := range segments {
		if b.Len() == 0 && (seg.isIdx || !isBareIdentifier(seg.key)) {
			// A leading "[...]" needs the dot, or jq reads it as an array constructor.
			b.WriteByte('.')
		}
		if seg.isIdx {
			fmt.Fprintf(&b, "[%d]", seg.index)
		} else if isBareIdentifier(seg.key) {
			b.WriteByte('.')
			b.WriteString(seg.key)
		} else {
			fmt.Fprintf(&b, "[%q]", seg.key)
		}
	}
	return b.String()
}

func isBareIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isAlpha {
			return false
		}
		if !isAlpha && !isDigit {
			return false
		}
	}
	return true
}
