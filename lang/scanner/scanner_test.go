package scanner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loxlang/loxvm/lang/token"
)

func scanAll(t *testing.T, source string) []token.Token {
	t.Helper()
	var s Scanner
	s.Init(source)
	var toks []token.Token
	for {
		tok := s.Scan()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func TestScanPunctuationAndOperators(t *testing.T) {
	toks := scanAll(t, "(){},.-+;/*! != = == < <= > >=")
	want := []token.Type{
		token.LPAREN, token.RPAREN, token.LBRACE, token.RBRACE, token.COMMA,
		token.DOT, token.MINUS, token.PLUS, token.SEMICOLON, token.SLASH, token.STAR,
		token.BANG, token.BANGEQ, token.EQ, token.EQEQ, token.LT, token.LTEQ,
		token.GT, token.GTEQ, token.EOF,
	}
	require.Len(t, toks, len(want))
	for i, typ := range want {
		require.Equalf(t, typ, toks[i].Type, "token %d (%q)", i, toks[i].Lexeme)
	}
}

func TestScanKeywordsAndIdentifiers(t *testing.T) {
	toks := scanAll(t, "and class fib fibonacci")
	require.Equal(t, token.AND, toks[0].Type)
	require.Equal(t, token.CLASS, toks[1].Type)
	require.Equal(t, token.IDENT, toks[2].Type)
	require.Equal(t, token.IDENT, toks[3].Type)
	require.Equal(t, "fibonacci", toks[3].Lexeme)
}

func TestScanNumbers(t *testing.T) {
	toks := scanAll(t, "123 45.67 1.")
	require.Equal(t, "123", toks[0].Lexeme)
	require.Equal(t, token.NUMBER, toks[0].Type)
	require.Equal(t, "45.67", toks[1].Lexeme)
	// a trailing '.' not followed by a digit is not part of the number
	require.Equal(t, "1", toks[2].Lexeme)
	require.Equal(t, token.DOT, toks[3].Type)
}

func TestScanStrings(t *testing.T) {
	toks := scanAll(t, `"hello world"`)
	require.Equal(t, token.STRING, toks[0].Type)
	require.Equal(t, `"hello world"`, toks[0].Lexeme)
}

func TestScanUnterminatedString(t *testing.T) {
	toks := scanAll(t, `"unterminated`)
	require.Equal(t, token.ILLEGAL, toks[0].Type)
}

func TestScanLineComment(t *testing.T) {
	toks := scanAll(t, "var x = 1; // assign\nvar y = 2;")
	var vars int
	for _, tok := range toks {
		if tok.Type == token.VAR {
			vars++
		}
	}
	require.Equal(t, 2, vars)
}

func TestScanLineNumbers(t *testing.T) {
	toks := scanAll(t, "var a;\nvar b;\n")
	require.Equal(t, 1, toks[0].Line)
	require.Equal(t, 2, toks[3].Line)
}

func TestScanIsIdempotentAtEOF(t *testing.T) {
	var s Scanner
	s.Init("")
	first := s.Scan()
	second := s.Scan()
	require.Equal(t, token.EOF, first.Type)
	require.Equal(t, token.EOF, second.Type)
}
