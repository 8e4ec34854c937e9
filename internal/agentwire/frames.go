package agentwire

import (
	"encoding/json"
	"strings"
)

// Extractor recovers complete JSON objects from an undelimited byte stream.
//
// The platform writes a sequence of JSON objects into the response body with
// no delimiter between them, and string values may contain raw newlines, so
// the only safe boundary signal is balanced, string-aware brace matching.
// Partial frames are held across Feed calls until more bytes arrive.
type Extractor struct {
	// buffer holds unconsumed bytes, including any trailing partial frame.
	buffer string
}

// FrameFunc receives each complete extracted JSON object.
type FrameFunc func(raw json.RawMessage)

// Feed appends a network chunk and emits every complete object it can
// extract, in stream order. Anything after the last complete object stays
// buffered for the next call.
func (x *Extractor) Feed(chunk string, emit FrameFunc) {
	x.buffer += chunk

	for {
		start := strings.IndexByte(x.buffer, '{')
		if start < 0 {
			return
		}
		end, ok := matchObject(x.buffer, start)
		if !ok {
			return
		}
		candidate := x.buffer[start : end+1]
		if !json.Valid([]byte(candidate)) {
			// A false boundary match inside content the scanner misjudged.
			// Stop and wait for more bytes rather than guessing a recovery
			// point mid-object.
			return
		}
		if emit != nil {
			emit(json.RawMessage(candidate))
		}
		x.buffer = x.buffer[end+1:]
	}
}

// Rest returns the unconsumed residual buffer.
func (x *Extractor) Rest() string {
	return x.buffer
}

// Reset discards any buffered partial frame.
func (x *Extractor) Reset() {
	x.buffer = ""
}

// matchObject finds the closing brace matching the opening brace at start.
//
// Braces inside string literals are ignored. A backslash escapes the next
// character, including a delimiting quote, and the escape state is cleared
// after exactly one character so `\\"` closes the string correctly.
func matchObject(data string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(data); i++ {
		c := data[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i, true
				}
			}
		}
	}
	return 0, false
}
