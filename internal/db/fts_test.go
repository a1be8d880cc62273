package db

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/kuitang/shared-notes/internal/db/testutil"
)

func TestEscapeFTS5Query_Examples(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"pub":               "pub*",
		"Cat OR dog":        "cat* OR dog*",
		`"hello world"`:     `"hello world"`,
		"bread -mold":       "bread* NOT mold*",
		"-spam":             "spam*",
		"OR OR":             "",
		"a OR OR b":         "a* OR b*",
		"title:secret":      "titlesecret*",
		`"" ()`:             "",
		"x\x00y":            "xy*",
		"OR -only":          "only*",
		"one OR -two three": "one* OR two* three*",
	}
	for in, want := range cases {
		assert.Equal(t, want, EscapeFTS5Query(in), "input %q", in)
	}
}

func testSanitizeFTS5Word_SafeChars_Properties(t *rapid.T) {
	word := testutil.ArbitraryString().Draw(t, "word")
	out := sanitizeFTS5Word(word)
	for _, r := range out {
		if r <= 127 && !(r == '_' || unicode.IsLower(r) || unicode.IsDigit(r)) {
			t.Fatalf("unsafe rune %q survived in %q", r, out)
		}
	}
	if again := sanitizeFTS5Word(out); again != out {
		t.Fatalf("not idempotent: %q -> %q", out, again)
	}
}

func TestSanitizeFTS5Word_SafeChars_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testSanitizeFTS5Word_SafeChars_Properties)
}

func FuzzSanitizeFTS5Word_SafeChars_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testSanitizeFTS5Word_SafeChars_Properties))
}

func testEscapeFTS5Query_WellFormed_Properties(t *rapid.T) {
	query := testutil.ArbitrarySearchQuery().Draw(t, "query")
	out := EscapeFTS5Query(query)
	if out == "" {
		return
	}
	if strings.Contains(out, "\x00") {
		t.Fatalf("NUL survived escaping")
	}
	parts := strings.Fields(out)
	if parts[0] == "OR" || parts[len(parts)-1] == "OR" {
		t.Fatalf("dangling OR in %q", out)
	}
	if parts[0] == "NOT" {
		t.Fatalf("leading NOT in %q", out)
	}
	if strings.Count(out, `"`)%2 != 0 {
		t.Fatalf("unbalanced quotes in %q", out)
	}
}

func TestEscapeFTS5Query_WellFormed_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testEscapeFTS5Query_WellFormed_Properties)
}

func FuzzEscapeFTS5Query_WellFormed_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testEscapeFTS5Query_WellFormed_Properties))
}

func TestTokenizeHumanSearch_KeepsPhrases(t *testing.T) {
	toks := tokenizeHumanSearch(`alpha "beta gamma" delta "open`)
	want := []searchToken{
		{text: "alpha"},
		{text: "beta gamma", isPhrase: true},
		{text: "delta"},
		{text: "open", isPhrase: true},
	}
	assert.Equal(t, want, toks)
}
