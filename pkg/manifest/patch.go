package manifest

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// spliceStringValue replaces the string value at keyPath inside raw JSON
// bytes, leaving every other byte untouched. keyPath addresses nested object
// keys from the document root (e.g., ["dependencies", "lodash"]).
//
// The target value must be a JSON string. Returns an error if the path does
// not exist or the document is malformed.
//
// encoding/json cannot do this: any re-marshal normalizes field order,
// whitespace and escapes, which breaks the byte-round-trip contract. The
// scanner below only computes the byte span of one leaf and splices it.
func spliceStringValue(data []byte, keyPath []string, newValue string) ([]byte, error) {
	start, end, err := stringValueSpan(data, keyPath)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(newValue)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(data)-(end-start)+len(encoded))
	out = append(out, data[:start]...)
	out = append(out, encoded...)
	out = append(out, data[end:]...)
	return out, nil
}

// stringValueSpan returns the byte span [start, end) of the string value at
// keyPath, including its surrounding quotes.
func stringValueSpan(data []byte, keyPath []string) (int, int, error) {
	s := &scanner{data: data}
	s.skipSpace()
	return s.findInObject(keyPath)
}

type scanner struct {
	data []byte
	pos  int
}

func (s *scanner) findInObject(keyPath []string) (int, int, error) {
	if err := s.expect('{'); err != nil {
		return 0, 0, err
	}
	s.skipSpace()
	if s.peek() == '}' {
		return 0, 0, fmt.Errorf("key %q not found", keyPath[0])
	}

	for {
		key, err := s.readString()
		if err != nil {
			return 0, 0, err
		}
		s.skipSpace()
		if err := s.expect(':'); err != nil {
			return 0, 0, err
		}
		s.skipSpace()

		if key == keyPath[0] {
			if len(keyPath) == 1 {
				if s.peek() != '"' {
					return 0, 0, fmt.Errorf("value of %q is not a string", key)
				}
				start := s.pos
				if _, err := s.readString(); err != nil {
					return 0, 0, err
				}
				return start, s.pos, nil
			}
			return s.findInObject(keyPath[1:])
		}

		if err := s.skipValue(); err != nil {
			return 0, 0, err
		}
		s.skipSpace()
		switch s.peek() {
		case ',':
			s.pos++
			s.skipSpace()
		case '}':
			return 0, 0, fmt.Errorf("key %q not found", keyPath[0])
		default:
			return 0, 0, fmt.Errorf("unexpected byte %q at offset %d", s.peek(), s.pos)
		}
	}
}

func (s *scanner) skipValue() error {
	s.skipSpace()
	switch c := s.peek(); {
	case c == '"':
		_, err := s.readString()
		return err
	case c == '{':
		return s.skipContainer('{', '}')
	case c == '[':
		return s.skipContainer('[', ']')
	default:
		// number, true, false, null
		start := s.pos
		for s.pos < len(s.data) {
			c := s.data[s.pos]
			if c == ',' || c == '}' || c == ']' || isSpace(c) {
				break
			}
			s.pos++
		}
		if s.pos == start {
			return fmt.Errorf("unexpected byte %q at offset %d", c, s.pos)
		}
		return nil
	}
}

func (s *scanner) skipContainer(open, close byte) error {
	if err := s.expect(open); err != nil {
		return err
	}
	depth := 1
	for s.pos < len(s.data) {
		switch c := s.data[s.pos]; c {
		case '"':
			if _, err := s.readString(); err != nil {
				return err
			}
			continue
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				s.pos++
				return nil
			}
		}
		s.pos++
	}
	return fmt.Errorf("unterminated %q", open)
}

func (s *scanner) readString() (string, error) {
	if err := s.expect('"'); err != nil {
		return "", err
	}
	start := s.pos
	for s.pos < len(s.data) {
		switch s.data[s.pos] {
		case '\\':
			s.pos += 2
		case '"':
			raw := s.data[start:s.pos]
			s.pos++
			return unquote(raw)
		default:
			s.pos++
		}
	}
	return "", fmt.Errorf("unterminated string at offset %d", start-1)
}

func (s *scanner) expect(c byte) error {
	if s.pos >= len(s.data) || s.data[s.pos] != c {
		return fmt.Errorf("expected %q at offset %d", c, s.pos)
	}
	s.pos++
	return nil
}

func (s *scanner) peek() byte {
	if s.pos >= len(s.data) {
		return 0
	}
	return s.data[s.pos]
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.data) && isSpace(s.data[s.pos]) {
		s.pos++
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// unquote decodes the interior of a JSON string literal.
func unquote(raw []byte) (string, error) {
	quoted := make([]byte, 0, len(raw)+2)
	quoted = append(quoted, '"')
	quoted = append(quoted, raw...)
	quoted = append(quoted, '"')
	var out string
	if err := json.Unmarshal(quoted, &out); err != nil {
		return "", err
	}
	if !utf8.ValidString(out) {
		return "", fmt.Errorf("invalid UTF-8 in string")
	}
	return out, nil
}
