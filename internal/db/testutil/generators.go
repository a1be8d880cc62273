// Package testutil provides rapid generators shared by storage and service tests.
// The string generators lean toward hostile input.
package testutil

import (
	"github.com/google/uuid"
	"pgregory.net/rapid"
)

// ArbitraryString covers empty strings, NUL bytes, control characters,
// injection attempts, FTS5 operators, unusual Unicode and long strings.
func ArbitraryString() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.String(),
		rapid.Just(""),
		rapid.Just("test\x00test"),
		rapid.StringMatching(`[a-zA-Z0-9 ]{0,100}`),
		rapid.StringMatching(`[\x00-\x1F]{1,10}`),
		sqlInjection(),
		fts5Syntax(),
		unicodeEdgeCases(),
		whitespace(),
		longString(),
	)
}

// ArbitraryNonEmptyString is ArbitraryString without the empty string.
func ArbitraryNonEmptyString() *rapid.Generator[string] {
	return ArbitraryString().Filter(func(s string) bool { return s != "" })
}

// ArbitrarySearchQuery generates raw search box input.
func ArbitrarySearchQuery() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.String(),
		rapid.Just(""),
		sqlInjection(),
		fts5Syntax(),
		unicodeEdgeCases(),
		whitespace(),
	)
}

// NoteTitle generates plausible non-empty titles.
func NoteTitle() *rapid.Generator[string] {
	return rapid.StringMatching(`[A-Za-z][A-Za-z0-9 ]{0,40}`)
}

// NoteDescription generates plausible non-empty descriptions.
func NoteDescription() *rapid.Generator[string] {
	return rapid.StringMatching(`[A-Za-z0-9][A-Za-z0-9 .,!?]{0,120}`)
}

// SearchWord generates a lowercase word unlikely to collide with filler text.
func SearchWord() *rapid.Generator[string] {
	return rapid.StringMatching(`zq[a-z]{4,10}`)
}

// UserID generates a random UUID string.
func UserID() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		b := rapid.SliceOfN(rapid.Byte(), 16, 16).Draw(t, "uuid")
		id, _ := uuid.FromBytes(b)
		return id.String()
	})
}

func sqlInjection() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		`' OR 1=1 --`,
		`'; DROP TABLE notes; --`,
		`" OR "1"="1`,
		`1; SELECT * FROM users`,
		`' UNION SELECT password_hash FROM users --`,
		`'; DELETE FROM note_shares; --`,
		`<script>alert('xss')</script>`,
	})
}

func fts5Syntax() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		`"`, `""`, `"""`, `test"`, `"test`,
		`AND`, `OR`, `NOT`, `NEAR`, `NEAR/5`,
		`*`, `test*`, `^test`, `col:value`, `title:secret`,
		`(test`, `test)`, `-test`, `+test`,
		`test AND OR`, `-a -b`, `OR OR`, `"unterminated phrase`,
	})
}

func unicodeEdgeCases() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		"日本語", "中文测试", "العربية", "עברית", "Москва", "한국어",
		"🔥🎉💻🚀", "emoji🔥in🎉middle", "Zürich",
		"\u200B", "\uFEFF", "à", "\u202Ereversed\u202C",
		"👨‍👩‍👧‍👦", "line separator",
	})
}

func whitespace() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		" ", "\t", "\n", "\r\n", " \t \n ", "  test  ", " ", "　", "\v", "\f",
	})
}

func longString() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		length := rapid.SampledFrom([]int{1_000, 10_000, 100_000}).Draw(t, "length")
		base := "abcdefghij"
		out := make([]byte, length)
		for i := range out {
			out[i] = base[i%len(base)]
		}
		return string(out)
	})
}
