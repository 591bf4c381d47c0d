package postprocess

import (
	"strings"
	"unicode/utf8"
)

// sentenceTerminators are the characters that end a sentence for the
// purposes of splitting a paragraph summary into candidates.
var sentenceTerminators = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
}

// splitSentences splits s after each sentence terminator, trimming
// surrounding whitespace from each resulting piece and dropping empties.
func splitSentences(s string) []string {
	var out []string
	var b strings.Builder
	for _, r := range s {
		b.WriteRune(r)
		if sentenceTerminators[r] {
			if piece := strings.TrimSpace(b.String()); piece != "" {
				out = append(out, piece)
			}
			b.Reset()
		}
	}
	if rest := strings.TrimSpace(b.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

// positiveKeywordSet triggers a flat +2 bonus if any member appears
// anywhere in the candidate sentence.
var positiveKeywordSet = []string{"문의", "답변", "안내", "설명", "처리", "해결", "확인", "검토", "분석"}

// positiveHitSet contributes +1 per distinct word present (a superset of
// positiveKeywordSet, grounded on the original's separate per-hit list).
// A word scores once no matter how many times it occurs in the sentence.
var positiveHitSet = []string{"문의", "답변", "안내", "설명", "처리", "해결", "확인", "검토", "분석", "제공", "발급", "이용"}

// negativeTokenSet contributes -1 per distinct word present, same
// presence-not-count rule as positiveHitSet.
var negativeTokenSet = []string{"불가능", "불가", "오류", "실패", "문제"}

func containsAny(s string, set []string) bool {
	for _, w := range set {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// scoreSentence implements the §4.7 scoring function: a length-band
// bonus plus keyword-hit bonuses minus negative-token penalties.
func scoreSentence(s string) int {
	n := utf8.RuneCountInString(s)

	var score int
	switch {
	case n >= 10 && n <= 50:
		score = 3
	case n >= 5 && n <= 80:
		score = 2
	default:
		score = 1
	}

	if containsAny(s, positiveKeywordSet) {
		score += 2
	}
	for _, w := range positiveHitSet {
		if strings.Contains(s, w) {
			score++
		}
	}
	for _, w := range negativeTokenSet {
		if strings.Contains(s, w) {
			score--
		}
	}
	return score
}

// selectBestSentence splits s into sentence candidates and returns the
// highest-scoring one. Ties keep the first candidate encountered. A
// single-sentence input is returned as-is (trimmed) without scoring.
func selectBestSentence(s string) string {
	sentences := splitSentences(s)
	if len(sentences) == 0 {
		return ""
	}
	if len(sentences) == 1 {
		return sentences[0]
	}

	best := sentences[0]
	bestScore := scoreSentence(best)
	for _, candidate := range sentences[1:] {
		if sc := scoreSentence(candidate); sc > bestScore {
			best = candidate
			bestScore = sc
		}
	}
	return best
}
