package asm

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/scanner"
	"unicode"
)

// ParseError reports a syntax error in assembly text.
type ParseError struct {
	Loc Location
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Loc.File, e.Loc.Line, e.Loc.Column, e.Msg)
}

// Parse reads the text form of a program:
//
//	PUSHINT_4 0
//	PUSHCONT {
//	  DUP
//	  ADD
//	}
//	IF
//
// One instruction per line (or separated by ';'). Operands follow the
// mnemonic: integers, stack and control registers (s1, c4), slice literals
// (x{..}, b{..}, boc{..}) and { ... } continuation bodies.
func Parse(filename string, src []byte) (Program, error) {
	p := &parser{file: filename}
	p.s.Init(bytes.NewReader(src))
	p.s.Filename = filename
	p.s.Mode = scanner.ScanIdents | scanner.ScanComments | scanner.SkipComments
	p.s.Whitespace = 1<<'\t' | 1<<' ' | 1<<'\r'
	p.s.IsIdentRune = func(ch rune, i int) bool {
		return ch == '_' || ch == '#' || unicode.IsLetter(ch) || unicode.IsDigit(ch)
	}
	p.s.Error = func(s *scanner.Scanner, msg string) {
		p.failAt(s.Pos(), msg)
	}

	p.next()
	prog := p.parseBlock(false)
	if p.err != nil {
		return nil, p.err
	}
	return prog, nil
}

type parser struct {
	s    scanner.Scanner
	file string
	tok  rune
	err  *ParseError
}

func (p *parser) next() {
	p.tok = p.s.Scan()
}

func (p *parser) failAt(pos scanner.Position, msg string) {
	if p.err != nil {
		return
	}
	p.err = &ParseError{
		Loc: Location{File: p.file, Line: pos.Line, Column: pos.Column},
		Msg: msg,
	}
}

func (p *parser) fail(msg string) {
	p.failAt(p.s.Position, msg)
}

func (p *parser) parseBlock(nested bool) Program {
	prog := Program{}
	for p.err == nil {
		switch p.tok {
		case '\n', ';':
			p.next()
		case scanner.EOF:
			if nested {
				p.fail("unexpected end of input, expected }")
			}
			return prog
		case '}':
			if !nested {
				p.fail("unexpected }")
			}
			return prog
		case scanner.Ident:
			prog = append(prog, p.parseInstr())
		default:
			p.fail(fmt.Sprintf("expected instruction, got %s", scanner.TokenString(p.tok)))
		}
	}
	return prog
}

func (p *parser) parseInstr() Instr {
	pos := p.s.Position
	in := Instr{
		Op:  p.s.TokenText(),
		Loc: &Location{File: p.file, Line: pos.Line, Column: pos.Column},
	}
	p.next()

	for p.err == nil {
		switch p.tok {
		case '\n', ';', '}', scanner.EOF:
			return in
		case '{':
			p.next()
			body := p.parseBlock(true)
			if p.err != nil {
				return in
			}
			p.next() // }
			in.Bodies = append(in.Bodies, body)
		case '-':
			p.next()
			n, ok := parseInt(p.s.TokenText())
			if p.tok != scanner.Ident || !ok {
				p.fail("expected integer after -")
				return in
			}
			in.Args = append(in.Args, -n)
			p.next()
		case scanner.Ident:
			p.operand(&in)
			p.next()
		default:
			p.fail(fmt.Sprintf("unexpected %s in operands of %s", scanner.TokenString(p.tok), in.Op))
		}
	}
	return in
}

func (p *parser) operand(in *Instr) {
	text := p.s.TokenText()
	switch {
	case isLiteralPrefix(text) && p.s.Peek() == '{':
		in.Literals = append(in.Literals, p.readLiteral(text))
	default:
		if n, ok := register(text); ok {
			in.Args = append(in.Args, n)
		} else if n, ok := parseInt(text); ok {
			in.Args = append(in.Args, n)
		} else {
			in.Literals = append(in.Literals, text)
		}
	}
}

// readLiteral consumes a raw literal body such as x{DEADBEEF} directly from
// the character stream.
func (p *parser) readLiteral(prefix string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for {
		ch := p.s.Next()
		if ch == scanner.EOF {
			p.fail("unterminated literal " + b.String())
			return b.String()
		}
		b.WriteRune(ch)
		if ch == '}' {
			return b.String()
		}
	}
}

func isLiteralPrefix(s string) bool {
	return s == "x" || s == "b" || s == "boc"
}

func register(s string) (int, bool) {
	if len(s) < 2 || (s[0] != 's' && s[0] != 'c') {
		return 0, false
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func parseInt(s string) (int, bool) {
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, false
	}
	return int(n), true
}
