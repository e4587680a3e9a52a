// Package match compiles free-text anime and artist names into
// romanization-tolerant regular expressions and evaluates them against
// candidate names.
package match

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidPattern is returned when a name cannot be compiled.
var ErrInvalidPattern = errors.New("invalid match pattern")

// Options controls how a name is compiled.
type Options struct {
	// IgnoreSpecialCharacters rewrites the escaped name through the
	// variant rule table so romanization, diacritic and separator
	// differences still match.
	IgnoreSpecialCharacters bool
	// PartialMatch matches the name anywhere in the candidate. When false
	// the whole candidate must match.
	PartialMatch bool
}

// DefaultOptions are the options used by search and artist resolution
// unless the caller overrides them.
var DefaultOptions = Options{IgnoreSpecialCharacters: true, PartialMatch: true}

type rule struct {
	input   string
	replace string
}

// rules are applied in order as plain string replacement on the escaped
// pattern text. Later rules rewrite the output of earlier ones, and the
// multi-letter rules must run before their single-letter prefixes.
var rules = []rule{
	{"ou", "(ou|ō|o)"},
	{"oo", "(oo|ō|o)"},
	{"oh", "(oh|ō|o)"},
	{"wo", "(wo|o)"},
	{"o", "([oōóòöôøΦο]|ou|oo|oh|wo)"},
	{"uu", "(uu|u|ū)"},
	{"u", "([uūûúùüǖ]|uu)"},
	{"aa", "(aa|a)"},
	{"a", "([aä@âàáạåæā∀]|aa)"},
	{"c", "[cč]"},
	{"e", "[eéêёëèæē]"},
	{"'", "['’]"},
	{"n", "[nñ]"},
	{"2", "[2²]"},
	{" ", `( ?[²★☆\/\*=\+·♥'♡∽・±⇔≒〜†×♪→␣:∞;~\-?,.!@_] ?| )`},
	{"i", "([iíί]|ii)"},
	{"3", "[3³]"},
	{"x", "[x×]"},
	{"b", "[bßβ]"},
	{"r", "[rЯ]"},
	{"s", "[sς]"},
	{"l", "[l˥]"},
}

// Pattern is a compiled name. It is immutable and safe for concurrent use.
type Pattern struct {
	source      string
	expr        string
	sensitive   *regexp.Regexp
	insensitive *regexp.Regexp
}

// Compile turns name into a Pattern according to opts.
func Compile(name string, opts Options) (*Pattern, error) {
	expr := Expression(name, opts)

	sensitive, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, name, err)
	}
	insensitive, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, name, err)
	}

	return &Pattern{
		source:      name,
		expr:        expr,
		sensitive:   sensitive,
		insensitive: insensitive,
	}, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level fixtures.
func MustCompile(name string, opts Options) *Pattern {
	p, err := Compile(name, opts)
	if err != nil {
		panic(err)
	}
	return p
}

// Expression returns the regular expression source Compile would build for
// name, without compiling it.
func Expression(name string, opts Options) string {
	expr := regexp.QuoteMeta(norm.NFC.String(name))
	if opts.IgnoreSpecialCharacters {
		for _, r := range rules {
			expr = strings.ReplaceAll(expr, r.input, r.replace)
		}
	}
	if !opts.PartialMatch {
		expr = "^(?:" + expr + ")$"
	}
	return expr
}

// Match reports whether candidate matches the pattern.
func (p *Pattern) Match(candidate string, caseSensitive bool) bool {
	candidate = norm.NFC.String(candidate)
	if caseSensitive {
		return p.sensitive.MatchString(candidate)
	}
	return p.insensitive.MatchString(candidate)
}

// MatchAny reports whether any of the candidates match.
func (p *Pattern) MatchAny(candidates []string, caseSensitive bool) bool {
	for _, c := range candidates {
		if p.Match(c, caseSensitive) {
			return true
		}
	}
	return false
}

// Source returns the name the pattern was compiled from.
func (p *Pattern) Source() string { return p.source }

// String returns the regular expression source.
func (p *Pattern) String() string { return p.expr }
