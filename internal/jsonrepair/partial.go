package jsonrepair

import "strings"

// completePartial repairs a candidate that was truncated mid-stream: an
// unterminated trailing string literal, missing canonical top-level
// keys, or a "paragraphs" array that opened but never produced an
// object. It does not attempt brace/bracket balancing itself;
// parseCandidate's structuralRepair pass handles that afterward.
func completePartial(candidate string) string {
	s := closeTrailingString(candidate)
	s = ensureCanonicalKeys(s)
	return s
}

// closeTrailingString closes an unterminated string literal at the end
// of s by finding the last unescaped quote and, if it opened a string
// that was never closed, appending a closing quote.
func closeTrailingString(s string) string {
	inString := false
	escaped := false
	for _, c := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
		}
	}
	if inString {
		return s + `"`
	}
	return s
}

// ensureCanonicalKeys appends the canonical summary/keyword/paragraphs
// keys with empty defaults if the candidate does not mention them at
// all, and inserts one default paragraph object if "paragraphs" opens an
// array with no objects in it.
func ensureCanonicalKeys(s string) string {
	trimmed := strings.TrimRight(s, " \t\n\r")
	body := strings.TrimSuffix(trimmed, "}")
	body = strings.TrimRight(body, " \t\n\r")

	hasSummary := strings.Contains(s, `"summary"`)
	hasKeyword := strings.Contains(s, `"keyword"`)
	hasParagraphs := strings.Contains(s, `"paragraphs"`)

	var additions []string
	if !hasSummary {
		additions = append(additions, `"summary": "요약 없음"`)
	}
	if !hasKeyword {
		additions = append(additions, `"keyword": "키워드 없음"`)
	}
	if !hasParagraphs {
		additions = append(additions, `"paragraphs": []`)
	} else if paragraphsOpenWithNoObjects(s) {
		body = insertDefaultParagraph(body)
	}

	if len(additions) == 0 {
		return body + "}"
	}

	hasExistingField := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), "{")) != ""
	if hasExistingField {
		body += ", "
	} else {
		body = strings.TrimRight(body, " \t\n\r")
	}
	body += strings.Join(additions, ", ")
	return body + "}"
}

func paragraphsOpenWithNoObjects(s string) bool {
	idx := strings.Index(s, `"paragraphs"`)
	if idx < 0 {
		return false
	}
	rest := s[idx:]
	bracketIdx := strings.IndexByte(rest, '[')
	if bracketIdx < 0 {
		return false
	}
	rest = rest[bracketIdx+1:]
	return !strings.Contains(rest, "{")
}

func insertDefaultParagraph(body string) string {
	idx := strings.Index(body, `"paragraphs"`)
	if idx < 0 {
		return body
	}
	rest := body[idx:]
	bracketIdx := strings.IndexByte(rest, '[')
	if bracketIdx < 0 {
		return body
	}
	insertAt := idx + bracketIdx + 1
	defaultObj := `{"summary": "요약 없음", "keyword": "", "sentiment": "보통"}`
	return body[:insertAt] + defaultObj + body[insertAt:]
}
