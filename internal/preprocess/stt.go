// Package preprocess turns raw STT (speech-to-text) segments into a
// single dialogue string suitable for the summarization prompt.
package preprocess

import (
	"fmt"
	"regexp"
	"strings"
)

// Segment is one raw STT result entry, matching the "sttResultList" shape
// of a raw-STT request payload.
type Segment struct {
	Transcript string `json:"transcript"`
	RecType    int    `json:"recType"`
}

// noDialogue is returned when every segment is empty after cleaning, so
// downstream prompting always receives non-empty text.
const noDialogue = "대화 내용이 없습니다."

// fillerWords are short acknowledgement tokens dropped when repeated by
// the same speaker immediately after themselves.
var fillerWords = map[string]bool{
	"네": true, "아": true, "음": true, "어": true, "그": true, "응": true,
	"yes": true, "no": true, "ok": true,
}

// allowedCharPattern keeps word characters, whitespace, Hangul syllables,
// and a fixed punctuation set; everything else is stripped.
var allowedCharPattern = regexp.MustCompile(`[^\w\s\x{AC00}-\x{D7A3}.,!?()\-:]`)

var whitespaceRunPattern = regexp.MustCompile(`\s+`)

// speakerLabel maps a recType to its display label: 4 is "나" (self,
// the agent side), 2 is "상대방" (the counterpart), anything else is a
// numbered generic speaker.
func speakerLabel(recType int) string {
	switch recType {
	case 4:
		return "나"
	case 2:
		return "상대방"
	default:
		return fmt.Sprintf("화자%d", recType)
	}
}

// cleanText collapses whitespace runs to a single space and strips any
// rune outside the allowed set.
func cleanText(s string) string {
	s = whitespaceRunPattern.ReplaceAllString(s, " ")
	s = allowedCharPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

type line struct {
	speaker    string
	transcript string
}

// Preprocess turns a raw STT segment list into a single newline-joined
// dialogue string, one "<speaker> > <transcript>" line per retained
// segment. Empty segments are dropped; adjacent same-speaker lines are
// merged or filtered per removeDuplicates; an entirely empty result
// yields the literal sentinel "대화 내용이 없습니다." rather than an
// empty string.
func Preprocess(segments []Segment) string {
	lines := make([]line, 0, len(segments))
	for _, seg := range segments {
		text := cleanText(seg.Transcript)
		if text == "" {
			continue
		}
		lines = append(lines, line{speaker: speakerLabel(seg.RecType), transcript: text})
	}

	lines = removeDuplicates(lines)

	if len(lines) == 0 {
		return noDialogue
	}

	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = fmt.Sprintf("%s > %s", l.speaker, l.transcript)
	}
	return strings.Join(out, "\n")
}

// removeDuplicates drops exact adjacent same-speaker repeats, drops short
// filler repeats from the same speaker, and merges adjacent same-speaker
// lines where one transcript is a substring of the other (keeping the
// longer of the two in place rather than appending a new line).
func removeDuplicates(lines []line) []line {
	out := make([]line, 0, len(lines))
	for _, l := range lines {
		if len(out) == 0 {
			out = append(out, l)
			continue
		}
		prev := &out[len(out)-1]

		if prev.speaker == l.speaker {
			if prev.transcript == l.transcript {
				continue
			}
			if isShortFiller(l.transcript) {
				continue
			}
			if strings.Contains(l.transcript, prev.transcript) {
				prev.transcript = l.transcript
				continue
			}
			if strings.Contains(prev.transcript, l.transcript) {
				continue
			}
		}
		out = append(out, l)
	}
	return out
}

func isShortFiller(s string) bool {
	if len([]rune(s)) > 3 {
		return false
	}
	return fillerWords[strings.ToLower(s)]
}
