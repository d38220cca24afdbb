// Package location maps diagnostic paths such as "Patient.contact[0].name"
// back to line and column positions in the JSON source they came from.
package location

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofhir/schemacheck/pkg/issue"
)

// Location is a 1-based position in JSON source.
type Location struct {
	Line   int
	Column int
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

var errNotFound = errors.New("path not found")

// segment is one step of a path: an object key, or an array index when key is empty.
type segment struct {
	key   string
	index int
}

// Find locates the value addressed by path in src. The first path segment
// names the kind of the document and is not looked up. It returns nil when
// the path does not resolve.
func Find(src []byte, path string) *Location {
	segs, ok := parsePath(path)
	if !ok {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(src))
	for _, seg := range segs {
		var err error
		if seg.key != "" {
			err = enterKey(dec, seg.key)
		} else {
			err = enterIndex(dec, seg.index)
		}
		if err != nil {
			return nil
		}
	}

	line, col := lineCol(src, valueStart(src, int(dec.InputOffset())))
	return &Location{Line: line, Column: col}
}

// Annotate sets Line and Column on every issue whose first expression lies
// under root. Issues reported under another prefix are left alone.
func Annotate(src []byte, root string, issues []issue.Issue) {
	for i := range issues {
		if len(issues[i].Expression) == 0 {
			continue
		}
		expr := issues[i].Expression[0]
		if expr != root && !strings.HasPrefix(expr, root+".") && !strings.HasPrefix(expr, root+"[") {
			continue
		}
		if loc := Find(src, expr); loc != nil {
			issues[i].Line, issues[i].Column = loc.Line, loc.Column
		}
	}
}

// parsePath splits "Kind.a[2].b" into [a, 2, b].
func parsePath(path string) ([]segment, bool) {
	if path == "" {
		return nil, false
	}
	start := strings.IndexAny(path, ".[")
	if start < 0 {
		return []segment{}, true
	}
	rest := path[start:]

	segs := []segment{}
	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			end := strings.IndexAny(rest[1:], ".[")
			if end < 0 {
				end = len(rest) - 1
			}
			key := rest[1 : end+1]
			if key == "" {
				return nil, false
			}
			segs = append(segs, segment{key: key})
			rest = rest[end+1:]
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, false
			}
			idx, err := strconv.Atoi(rest[1:end])
			if err != nil || idx < 0 {
				return nil, false
			}
			segs = append(segs, segment{index: idx})
			rest = rest[end+1:]
		default:
			return nil, false
		}
	}
	return segs, true
}

// enterKey reads an object up to and including key, leaving the decoder in
// front of its value.
func enterKey(dec *json.Decoder, key string) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if k, _ := tok.(string); k == key {
			return nil
		}
		if err := skipValue(dec); err != nil {
			return err
		}
	}
	return errNotFound
}

// enterIndex reads an array up to element idx, leaving the decoder in front of it.
func enterIndex(dec *json.Decoder, idx int) error {
	if err := expectDelim(dec, '['); err != nil {
		return err
	}
	for i := 0; dec.More(); i++ {
		if i == idx {
			return nil
		}
		if err := skipValue(dec); err != nil {
			return err
		}
	}
	return errNotFound
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %v, got %v", want, tok)
	}
	return nil
}

// skipValue consumes one value, however deeply nested.
func skipValue(dec *json.Decoder) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
		if depth == 0 {
			return nil
		}
	}
}

// valueStart skips the separators between the decoder offset and the next value.
func valueStart(src []byte, offset int) int {
	for offset < len(src) {
		switch src[offset] {
		case ' ', '\t', '\r', '\n', ':', ',':
			offset++
		default:
			return offset
		}
	}
	return offset
}

func lineCol(src []byte, offset int) (line, col int) {
	line, col = 1, 1
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
