// Package parser decodes the list-of-object text fields embedded in the
// TMDB CSV exports (genres, keywords, cast, crew). Those cells hold
// Python-style literals such as [{'id': 16, 'name': 'Animation'}].
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Object is one decoded dictionary entry.
type Object map[string]interface{}

var errSyntax = errors.New("literal syntax error")

// ParseLiteral decodes a single literal value. Lists and tuples become
// []interface{}, dictionaries become Object, None/null becomes nil.
func ParseLiteral(raw string) (interface{}, error) {
	p := &literalParser{src: raw}
	p.skipSpace()
	v, err := p.value(0)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("trailing data")
	}
	return v, nil
}

// ParseList decodes a literal list and returns its elements as written.
// Blank cells, "nan", syntax errors and non-list values all yield an empty
// slice.
func ParseList(raw string) []interface{} {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "nan") {
		return []interface{}{}
	}
	v, err := ParseLiteral(trimmed)
	if err != nil {
		return []interface{}{}
	}
	list, ok := v.([]interface{})
	if !ok {
		return []interface{}{}
	}
	return list
}

// ParseObjectList is ParseList with non-object elements left out.
func ParseObjectList(raw string) []Object {
	out := []Object{}
	for _, el := range ParseList(raw) {
		if obj, ok := el.(Object); ok {
			out = append(out, obj)
		}
	}
	return out
}

const maxDepth = 64

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w at offset %d: %s", errSyntax, p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *literalParser) value(depth int) (interface{}, error) {
	if depth > maxDepth {
		return nil, p.errorf("nesting too deep")
	}
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end of input")
	}
	switch c := p.src[p.pos]; {
	case c == '[':
		return p.sequence(depth, ']')
	case c == '(':
		return p.sequence(depth, ')')
	case c == '{':
		return p.dict(depth)
	case c == '\'' || c == '"':
		return p.str()
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return p.keyword()
	}
}

func (p *literalParser) sequence(depth int, closer byte) (interface{}, error) {
	p.pos++ // opening bracket
	items := []interface{}{}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated sequence")
		}
		if p.src[p.pos] == closer {
			p.pos++
			return items, nil
		}
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated sequence")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case closer:
		default:
			return nil, p.errorf("expected ',' or %q", closer)
		}
	}
}

func (p *literalParser) dict(depth int) (interface{}, error) {
	p.pos++ // {
	obj := Object{}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated dict")
		}
		if p.src[p.pos] == '}' {
			p.pos++
			return obj, nil
		}
		k, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ':' {
			return nil, p.errorf("expected ':'")
		}
		p.pos++
		p.skipSpace()
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		switch key := k.(type) {
		case string:
			obj[key] = v
		case []interface{}, Object:
			return nil, p.errorf("unhashable key")
		default:
			obj[fmt.Sprint(key)] = v
		}
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated dict")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, p.errorf("expected ',' or '}'")
		}
	}
}

func (p *literalParser) str() (interface{}, error) {
	quote := p.src[p.pos]
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\\':
			if err := p.escape(&b); err != nil {
				return nil, err
			}
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			b.WriteRune(r)
			p.pos += size
		}
	}
	return nil, p.errorf("unterminated string")
}

func (p *literalParser) escape(b *strings.Builder) error {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return p.errorf("dangling escape")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case '0':
		b.WriteByte(0)
	case '\\', '\'', '"':
		b.WriteByte(c)
	case '\n':
		// line continuation
	case 'x':
		return p.hexEscape(b, 2)
	case 'u':
		return p.hexEscape(b, 4)
	case 'U':
		return p.hexEscape(b, 8)
	default:
		// Python keeps unknown escapes verbatim.
		b.WriteByte('\\')
		b.WriteByte(c)
	}
	return nil
}

func (p *literalParser) hexEscape(b *strings.Builder, digits int) error {
	if p.pos+digits > len(p.src) {
		return p.errorf("truncated escape")
	}
	n, err := strconv.ParseUint(p.src[p.pos:p.pos+digits], 16, 32)
	if err != nil {
		return p.errorf("bad escape")
	}
	p.pos += digits
	b.WriteRune(rune(n))
	return nil
}

func (p *literalParser) number() (interface{}, error) {
	start := p.pos
	isFloat := false
	for ; p.pos < len(p.src); p.pos++ {
		c := p.src[p.pos]
		if c == '.' || c == 'e' || c == 'E' {
			isFloat = true
			continue
		}
		if !(c >= '0' && c <= '9') && c != '-' && c != '+' && c != '_' {
			break
		}
	}
	text := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	if !isFloat {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.pos = start
		return nil, p.errorf("bad number %q", text)
	}
	return f, nil
}

func (p *literalParser) keyword() (interface{}, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			p.pos++
			continue
		}
		break
	}
	switch word := p.src[start:p.pos]; word {
	case "None", "null":
		return nil, nil
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	case "nan", "NaN":
		return nil, nil
	default:
		p.pos = start
		return nil, p.errorf("unexpected token %q", word)
	}
}
