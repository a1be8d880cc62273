package db

import "strings"

// EscapeFTS5Query converts human-friendly search input into safe FTS5 MATCH syntax.
// Built for typeahead search: prefix matching, OR, quoted phrases and exclusion
// via a - prefix. An exclusion with no positive term before it in its OR group
// becomes a plain term, since FTS5 cannot start an expression with NOT.
//
// Syntax supported:
//   - bare word     → prefix match:  pub → pub*
//   - OR            → FTS5 OR:       cat OR dog → cat* OR dog*
//   - "phrase"      → exact phrase:  "hello world" → "hello world"
//   - -word         → exclusion:     -spam → NOT spam*
//   - implicit AND for adjacent terms
//
// A query with no searchable word returns "", which callers treat as "no results".
func EscapeFTS5Query(query string) string {
	query = strings.ReplaceAll(query, "\x00", "")
	tokens := tokenizeHumanSearch(query)

	// First pass: convert tokens to FTS5 terms
	var terms []string
	for _, tok := range tokens {
		switch {
		case tok.isPhrase:
			phrase := sanitizeFTS5Word(tok.text)
			if phrase != "" {
				terms = append(terms, `"`+strings.ReplaceAll(tok.text, `"`, `""`)+`"`)
			}
		case strings.EqualFold(tok.text, "OR"):
			terms = append(terms, "OR")
		case strings.HasPrefix(tok.text, "-") && len(tok.text) > 1:
			clean := sanitizeFTS5Word(tok.text[1:])
			if clean != "" {
				terms = append(terms, "NOT "+clean+"*")
			}
		default:
			clean := sanitizeFTS5Word(tok.text)
			if clean != "" {
				terms = append(terms, clean+"*")
			}
		}
	}

	// Check if we have any positive (non-NOT) terms
	hasPositive := false
	for _, term := range terms {
		if term != "OR" && !strings.HasPrefix(term, "NOT ") {
			hasPositive = true
			break
		}
	}

	// If only NOT terms, NOT is invalid (binary operator in FTS5). Convert to positive.
	if !hasPositive {
		for i, term := range terms {
			if strings.HasPrefix(term, "NOT ") {
				terms[i] = strings.TrimPrefix(term, "NOT ")
			}
		}
	}

	// Second pass: remove invalid OR positions (leading, trailing, consecutive)
	var parts []string
	for _, term := range terms {
		if term == "OR" {
			if len(parts) == 0 || parts[len(parts)-1] == "OR" {
				continue
			}
			parts = append(parts, term)
		} else {
			parts = append(parts, term)
		}
	}
	// Remove trailing OR
	for len(parts) > 0 && parts[len(parts)-1] == "OR" {
		parts = parts[:len(parts)-1]
	}

	// Third pass: NOT is a binary operator in FTS5 and cannot start a group.
	// If a group starts with NOT (at query start or right after OR), degrade it
	// to a positive term so the final query always remains syntactically valid.
	var normalized []string
	hasPositiveInGroup := false
	for _, term := range parts {
		if term == "OR" {
			if len(normalized) == 0 || normalized[len(normalized)-1] == "OR" {
				continue
			}
			normalized = append(normalized, term)
			hasPositiveInGroup = false
			continue
		}

		if strings.HasPrefix(term, "NOT ") && !hasPositiveInGroup {
			term = strings.TrimPrefix(term, "NOT ")
		}

		if term == "" {
			continue
		}
		normalized = append(normalized, term)
		if !strings.HasPrefix(term, "NOT ") {
			hasPositiveInGroup = true
		}
	}
	// Remove trailing OR again after normalization.
	for len(normalized) > 0 && normalized[len(normalized)-1] == "OR" {
		normalized = normalized[:len(normalized)-1]
	}

	if len(normalized) == 0 {
		return ""
	}
	return strings.Join(normalized, " ")
}

// searchToken represents a parsed token from human search input.
type searchToken struct {
	text     string // the token text (without surrounding quotes for phrases)
	isPhrase bool   // true if this was a "quoted phrase"
}

// tokenizeHumanSearch splits search input into tokens, preserving quoted phrases.
func tokenizeHumanSearch(input string) []searchToken {
	var tokens []searchToken
	i := 0
	for i < len(input) {
		// Skip whitespace
		if input[i] == ' ' || input[i] == '\t' {
			i++
			continue
		}
		// Quoted phrase
		if input[i] == '"' {
			end := strings.IndexByte(input[i+1:], '"')
			if end >= 0 {
				tokens = append(tokens, searchToken{text: input[i+1 : i+1+end], isPhrase: true})
				i = i + 1 + end + 1
			} else {
				// Unclosed quote: treat rest as phrase
				tokens = append(tokens, searchToken{text: input[i+1:], isPhrase: true})
				break
			}
			continue
		}
		// Regular word (until next space or quote)
		end := i + 1
		for end < len(input) && input[end] != ' ' && input[end] != '\t' && input[end] != '"' {
			end++
		}
		tokens = append(tokens, searchToken{text: input[i:end]})
		i = end
	}
	return tokens
}

// sanitizeFTS5Word strips characters that cause FTS5 syntax errors.
// Keeps letters, digits, and underscore (safe in FTS5 tokens).
func sanitizeFTS5Word(word string) string {
	clean := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r > 127 {
			return r
		}
		return -1
	}, word)
	return strings.ToLower(clean)
}
