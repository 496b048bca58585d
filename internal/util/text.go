package util

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"can": {}, "do": {}, "does": {}, "for": {}, "from": {}, "how": {}, "i": {}, "in": {},
	"is": {}, "it": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "so": {},
	"that": {}, "the": {}, "this": {}, "to": {}, "use": {}, "we": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "who": {}, "why": {}, "with": {}, "you": {}, "your": {},
}

// Tokenize lower-cases text, splits on non alphanumerics, drops stopwords and
// applies a light suffix stemmer so "configuring" and "configure" meet.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, Stem(f))
	}
	return out
}

// TermSet returns the distinct tokens of text.
func TermSet(text string) map[string]struct{} {
	toks := Tokenize(text)
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return set
}

// Overlap returns the share of query terms present in doc, in [0,1].
func Overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// Stem strips a plural "s" and then one common English suffix. Words of
// four runes or fewer are returned as is.
func Stem(w string) string {
	if len([]rune(w)) <= 4 {
		return w
	}
	if strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		w = strings.TrimSuffix(w, "s")
		if len([]rune(w)) <= 4 {
			return w
		}
	}
	for _, suf := range []string{"ation", "ing", "er", "ed", "e"} {
		if strings.HasSuffix(w, suf) && len(w)-len(suf) >= 3 {
			return strings.TrimSuffix(w, suf)
		}
	}
	return w
}
