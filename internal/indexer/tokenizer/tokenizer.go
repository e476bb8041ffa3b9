// Package tokenizer turns a fragment into the token sequence used for
// indexing and scoring. Text runs are NFC-normalised, case-folded and split
// on non-alphanumeric boundaries; every inline code becomes one generic code
// token, whatever its tag.
package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
)

// CodeTerm is the term recorded for every inline code. It cannot collide
// with a word because words never contain control characters.
const CodeTerm = "\x00code"

// Token represents a single normalised term and its position in the
// token sequence.
type Token struct {
	Term     string
	Position int
}

func (t Token) IsCode() bool {
	return t.Term == CodeTerm
}

// Tokenize breaks a fragment into tokens. A nil or empty fragment yields
// an empty sequence.
func Tokenize(f *fragment.Fragment) []Token {
	if f.IsEmpty() {
		return nil
	}
	folder := cases.Fold()
	var tokens []Token
	for _, run := range f.Runs() {
		if run.IsCode() {
			tokens = append(tokens, Token{Term: CodeTerm, Position: len(tokens)})
			continue
		}
		for _, word := range Words(folder.String(norm.NFC.String(run.Text))) {
			tokens = append(tokens, Token{Term: word, Position: len(tokens)})
		}
	}
	return tokens
}

// TokenizeText tokenizes plain text with no inline codes.
func TokenizeText(text string) []Token {
	return Tokenize(fragment.FromText(text))
}

// Words splits already-normalised text into words.
func Words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})
}

// Terms returns the term of every token, in order.
func Terms(tokens []Token) []string {
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// Distinct returns each term once, in first-seen order.
func Distinct(tokens []Token) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t.Term]; ok {
			continue
		}
		seen[t.Term] = struct{}{}
		out = append(out, t.Term)
	}
	return out
}

// SameTerms reports whether both sequences hold the same terms in the same
// order.
func SameTerms(a, b []Token) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Term != b[i].Term {
			return false
		}
	}
	return true
}

// CodeCount returns the number of code tokens.
func CodeCount(tokens []Token) int {
	n := 0
	for _, t := range tokens {
		if t.IsCode() {
			n++
		}
	}
	return n
}

// WordsOnly drops code tokens and renumbers positions.
func WordsOnly(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t.IsCode() {
			continue
		}
		out = append(out, Token{Term: t.Term, Position: len(out)})
	}
	return out
}
