// Package jsonrepair extracts a JSON object out of a model completion
// that wraps it in prose and markdown fencing, repairing common
// structural damage (truncation, doubled commas, split tokens) before
// falling back to field-wise regex extraction as a last resort.
//
// Extract never returns an error: its contract is to always produce a
// usable value tree, falling back to the canonical empty artifact when
// every recovery strategy is exhausted.
package jsonrepair

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tailscale/hujson"
)

// EmptyArtifact is the canonical value returned when every extraction
// and repair strategy fails.
func EmptyArtifact() map[string]any {
	return map[string]any{
		"summary":    "",
		"keyword":    "",
		"paragraphs": []any{},
	}
}

// Extract runs the ordered extraction strategies, in priority order:
// fenced ```json block, fenced generic block, partial/truncated fence,
// and finally regex field extraction. The first strategy that yields a
// value parseable as JSON (after structural repair) wins.
func Extract(text string) map[string]any {
	if candidate, ok := extractFenced(text, "```json"); ok {
		if v, ok := parseCandidate(candidate); ok {
			return v
		}
	}
	if candidate, ok := extractFenced(text, "```"); ok {
		if v, ok := parseCandidate(candidate); ok {
			return v
		}
	}
	if candidate, ok := extractPartialFence(text); ok {
		if v, ok := parseCandidate(completePartial(candidate)); ok {
			return v
		}
	}
	if v, ok := extractFields(text); ok {
		return v
	}
	return EmptyArtifact()
}

// parseCandidate first re-joins split sentiment tokens (a split token is
// still valid JSON, so no parse failure would trigger that repair), then
// attempts, in order: a strict parse, a tolerant JSONC parse (hujson),
// and finally a strict parse after structural repair.
// hujson already tolerates trailing commas and comments, which covers a
// meaningful fraction of malformed completions without running the
// hand-written repair passes below; it is a fast path, not a
// replacement for them.
func parseCandidate(candidate string) (map[string]any, bool) {
	candidate = normalizeSentimentTokens(candidate)
	if v, ok := tryParse(candidate); ok {
		return v, true
	}
	if standardized, err := hujson.Standardize([]byte(candidate)); err == nil {
		if v, ok := tryParse(string(standardized)); ok {
			return v, true
		}
	}
	return tryParse(structuralRepair(candidate))
}

func tryParse(s string) (map[string]any, bool) {
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// extractFenced locates fence and, from the first '{' after it, runs a
// brace-depth counter until depth returns to zero. Reports false if the
// fence is absent or never balances (a partial fence; see
// extractPartialFence for that case).
func extractFenced(text, fence string) (string, bool) {
	idx := strings.Index(text, fence)
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len(fence):]
	braceStart := strings.IndexByte(rest, '{')
	if braceStart < 0 {
		return "", false
	}
	end, ok := matchBrace(rest, braceStart)
	if !ok {
		return "", false
	}
	return rest[braceStart : end+1], true
}

// matchBrace returns the index of the '{' at start's matching closing
// '}', tracking depth through nested objects and skipping braces inside
// quoted strings.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// extractPartialFence handles a fence that opens but never closes: take
// the substring from the first '{' through the next fence occurrence (or
// end of string) so completePartial has something to work with.
func extractPartialFence(text string) (string, bool) {
	idx := strings.IndexByte(text, '{')
	if idx < 0 {
		return "", false
	}
	rest := text[idx:]
	if closeIdx := strings.Index(rest[1:], "```"); closeIdx >= 0 {
		return rest[:closeIdx+1], true
	}
	return rest, true
}

var (
	fieldSummaryPattern = regexp.MustCompile(`"summary"\s*:\s*"([^"]*)"`)
	fieldKeywordString  = regexp.MustCompile(`"keyword"\s*:\s*"([^"]*)"`)
	fieldKeywordArray   = regexp.MustCompile(`"keyword"\s*:\s*\[([^\]]*)\]`)
	fieldSentiment      = regexp.MustCompile(`"sentiment"\s*:\s*"([^"]*)"`)
	paragraphsKeyMarker = regexp.MustCompile(`"paragraphs"\s*:\s*\[`)
)

// extractFields is the fallback of last resort: scan the whole text with
// regexes for the top-level fields and a brace-level walk over each
// object inside "paragraphs": [ ... ], assembling a synthetic value.
func extractFields(text string) (map[string]any, bool) {
	summary := ""
	if m := fieldSummaryPattern.FindStringSubmatch(text); m != nil {
		summary = m[1]
	}

	keyword := ""
	if m := fieldKeywordString.FindStringSubmatch(text); m != nil {
		keyword = m[1]
	} else if m := fieldKeywordArray.FindStringSubmatch(text); m != nil {
		keyword = m[1]
	}

	paragraphs := []any{}
	if loc := paragraphsKeyMarker.FindStringIndex(text); loc != nil {
		paragraphs = extractParagraphObjects(text[loc[1]:])
	}

	if summary == "" && keyword == "" && len(paragraphs) == 0 {
		return nil, false
	}

	return map[string]any{
		"summary":    summary,
		"keyword":    keyword,
		"paragraphs": paragraphs,
	}, true
}

// extractParagraphObjects walks s (the text just after "paragraphs": [)
// collecting each top-level {...} object and extracting its summary,
// keyword, and sentiment fields. Missing sentiment defaults to "보통".
func extractParagraphObjects(s string) []any {
	var out []any
	for {
		start := strings.IndexByte(s, '{')
		if start < 0 {
			break
		}
		end, ok := matchBrace(s, start)
		if !ok {
			break
		}
		obj := s[start : end+1]

		para := map[string]any{"sentiment": "보통"}
		if m := fieldSummaryPattern.FindStringSubmatch(obj); m != nil {
			para["summary"] = m[1]
		}
		if m := fieldKeywordString.FindStringSubmatch(obj); m != nil {
			para["keyword"] = m[1]
		}
		if m := fieldSentiment.FindStringSubmatch(obj); m != nil {
			para["sentiment"] = m[1]
		}
		out = append(out, para)

		s = s[end+1:]
		if closeIdx := strings.IndexByte(s, ']'); closeIdx >= 0 {
			nextOpen := strings.IndexByte(s, '{')
			if nextOpen < 0 || closeIdx < nextOpen {
				break
			}
		}
	}
	if out == nil {
		out = []any{}
	}
	return out
}
