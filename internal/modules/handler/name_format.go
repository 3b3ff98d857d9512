package handler

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Identifiers accepted in person name formats.
var nameIdentifiers = []string{"First", "Last", "Middle", "Title", "Suffix"}

// NameFormat is a compiled person name format such as "%Last, %First< %1Middle.>".
//
// Grammar: literal text, %[N]Identifier (N truncates to N characters), "%%"
// for a literal percent, and <...> scopes which may nest. A scope that
// references a missing variable renders as nothing.
type NameFormat struct {
	source string
	root   formatSeq
}

type formatNode interface {
	render(lookup func(string) (string, bool)) (string, bool)
}

type formatSeq []formatNode

type literalNode string

type variableNode struct {
	name  string
	limit int
}

type scopeNode struct {
	body formatSeq
}

func (s formatSeq) render(lookup func(string) (string, bool)) (string, bool) {
	var sb strings.Builder
	for _, n := range s {
		out, ok := n.render(lookup)
		if !ok {
			return "", false
		}
		sb.WriteString(out)
	}
	return sb.String(), true
}

func (l literalNode) render(func(string) (string, bool)) (string, bool) {
	return string(l), true
}

func (v variableNode) render(lookup func(string) (string, bool)) (string, bool) {
	val, ok := lookup(v.name)
	if !ok || val == "" {
		return "", false
	}
	if v.limit > 0 && utf8.RuneCountInString(val) > v.limit {
		val = string([]rune(val)[:v.limit])
	}
	return val, true
}

func (s scopeNode) render(lookup func(string) (string, bool)) (string, bool) {
	out, ok := s.body.render(lookup)
	if !ok {
		return "", true
	}
	return out, true
}

// ParseNameFormat compiles a person name format.
func ParseNameFormat(format string) (*NameFormat, error) {
	if format == "" {
		return nil, fmt.Errorf("format is empty")
	}
	p := &formatParser{src: format}
	seq, err := p.parseSeq(0)
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.src) {
		return nil, fmt.Errorf("unmatched '>' at offset %d", p.pos)
	}
	return &NameFormat{source: format, root: seq}, nil
}

// Render renders the format; ok is false when a variable outside every
// scope is missing.
func (f *NameFormat) Render(lookup func(name string) (string, bool)) (string, bool) {
	return f.root.render(lookup)
}

// String returns the source format.
func (f *NameFormat) String() string {
	return f.source
}

type formatParser struct {
	src string
	pos int
}

func (p *formatParser) parseSeq(depth int) (formatSeq, error) {
	var seq formatSeq
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			seq = append(seq, literalNode(lit.String()))
			lit.Reset()
		}
	}

	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		switch ch {
		case '<':
			flush()
			start := p.pos
			p.pos++
			body, err := p.parseSeq(depth + 1)
			if err != nil {
				return nil, err
			}
			if p.pos >= len(p.src) || p.src[p.pos] != '>' {
				return nil, fmt.Errorf("unmatched '<' at offset %d", start)
			}
			p.pos++
			seq = append(seq, scopeNode{body: body})
		case '>':
			if depth == 0 {
				return nil, fmt.Errorf("unmatched '>' at offset %d", p.pos)
			}
			flush()
			return seq, nil
		case '%':
			if p.pos+1 < len(p.src) && p.src[p.pos+1] == '%' {
				lit.WriteByte('%')
				p.pos += 2
				continue
			}
			flush()
			v, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			seq = append(seq, v)
		default:
			lit.WriteByte(ch)
			p.pos++
		}
	}
	flush()
	return seq, nil
}

func (p *formatParser) parseVariable() (variableNode, error) {
	start := p.pos
	p.pos++ // '%'

	digits := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	var v variableNode
	if p.pos > digits {
		n, err := strconv.Atoi(p.src[digits:p.pos])
		if err != nil || n <= 0 {
			return v, fmt.Errorf("invalid length at offset %d", digits)
		}
		v.limit = n
	}

	ident := p.pos
	for p.pos < len(p.src) && isIdentChar(p.src[p.pos]) {
		p.pos++
	}
	name := p.src[ident:p.pos]
	if name == "" {
		return v, fmt.Errorf("'%%' without identifier at offset %d", start)
	}
	for _, known := range nameIdentifiers {
		if strings.EqualFold(known, name) {
			v.name = known
			return v, nil
		}
	}
	return v, fmt.Errorf("unknown identifier %q at offset %d (expected one of %s)",
		name, ident, strings.Join(nameIdentifiers, ", "))
}

func isIdentChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
