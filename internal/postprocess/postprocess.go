// Package postprocess applies the pure, schema-level normalization
// transforms the broker runs on every decoded LLM artifact: example-leak
// filtering, whitespace collapsing, the Korean verb-to-noun rewrite, the
// summary length gate, keyword deduplication, and sentiment
// canonicalization.
//
// Input arrives as the untyped value tree jsonrepair.Extract produces
// (map[string]any / []any / string / float64 / nil); Normalize is the
// explicit coercion step from that tagged-union tree into the typed
// Artifact.
package postprocess

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// RequeryPrefix marks a summary that exceeded the length gate and needs
// a second, shrinking model call. Its presence is what the worker checks
// to decide whether to run the re-query step.
const RequeryPrefix = "[재질의 필요] "

// maxSummaryBytes is the UTF-8 byte budget enforced by the length gate.
const maxSummaryBytes = 120

const (
	unsummarizableText = "요약이 불가능한 내용입니다."
	missingSummaryText = "요약 없음"
	missingParaText    = "문단 요약 없음"
	missingKeywordText = "키워드 없음"
)

// Artifact is the typed LLM response artifact delivered to clients.
type Artifact struct {
	Summary    string      `json:"summary"`
	Keyword    string      `json:"keyword"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

// Paragraph is one entry of Artifact.Paragraphs.
type Paragraph struct {
	Summary   string `json:"summary"`
	Keyword   string `json:"keyword"`
	Sentiment string `json:"sentiment"`
}

// Normalize converts the raw value tree produced by JSON extraction into
// a typed, fully normalized Artifact. It never fails: every field that
// cannot be coerced falls back to its documented default.
func Normalize(raw map[string]any) Artifact {
	return Artifact{
		Summary:    ProcessSummary(raw["summary"]),
		Keyword:    ProcessKeyword(raw["keyword"], 5),
		Paragraphs: processParagraphs(raw["paragraphs"]),
	}
}

// ProcessSummary applies the top-level summary pipeline: idempotence
// short-circuit, example-leak filtering, whitespace collapsing, the
// verb-to-noun rewrite, and the 120-byte length gate.
func ProcessSummary(raw any) string {
	s := toSummaryString(raw)
	if s == "" {
		return unsummarizableText
	}

	// Checked first: the worker's re-query path depends on this to
	// avoid re-prefixing an already-gated summary.
	if strings.HasPrefix(s, RequeryPrefix) {
		return s
	}

	if isTopLevelLeak(s) {
		return missingSummaryText
	}

	s = collapseWhitespace(s)
	s = applyVerbToNounRewrite(s)
	s = collapseWhitespace(s)

	if utf8.RuneCountInString(s) == 0 {
		return unsummarizableText
	}

	if len(s) > maxSummaryBytes {
		return RequeryPrefix + s
	}
	return s
}

// ApplyNounFormOnly runs only the verb-to-noun rewrite step, used by the
// worker's re-query path so the length gate cannot re-add the prefix it
// just stripped.
func ApplyNounFormOnly(s string) string {
	s = collapseWhitespace(s)
	s = applyVerbToNounRewrite(s)
	return collapseWhitespace(s)
}

func toSummaryString(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(toString(v))
	}
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

var topLevelLeakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)예시.*내용`),
	regexp.MustCompile(`(?i)샘플.*내용`),
	regexp.MustCompile(`(?i)테스트.*내용`),
	regexp.MustCompile(`(?i)출력.*예시`),
	regexp.MustCompile(`(?i)분석.*규칙`),
	regexp.MustCompile(`(?i)출력.*형식`),
	regexp.MustCompile("```json"),
	regexp.MustCompile("```"),
	regexp.MustCompile(`(?i)JSON.*형식`),
	regexp.MustCompile(`(?i)다음.*형식`),
}

func isTopLevelLeak(s string) bool {
	for _, p := range topLevelLeakPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// paragraphLeakPatterns is a separate, shorter set than the top-level
// one: paragraph summaries are never expected to echo prompt-formatting
// instructions, only stock example phrases.
var paragraphLeakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)예시.*내용`),
	regexp.MustCompile(`(?i)샘플.*내용`),
	regexp.MustCompile(`(?i)테스트.*내용`),
}

func isParagraphLeak(s string) bool {
	for _, p := range paragraphLeakPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// ProcessKeyword accepts either a comma-separated string or a list,
// splits, trims, dedupes preserving first occurrence, and truncates to
// limit entries (0 means unlimited). Entries are rejoined with ", ".
func ProcessKeyword(raw any, limit int) string {
	items := toKeywordList(raw)

	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	if len(out) == 0 {
		return missingKeywordText
	}
	return strings.Join(out, ", ")
}

func toKeywordList(raw any) []string {
	switch v := raw.(type) {
	case string:
		return strings.Split(v, ",")
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, toString(item))
		}
		return out
	default:
		return nil
	}
}

const maxParagraphs = 3

func processParagraphs(raw any) []Paragraph {
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return []Paragraph{{Summary: unsummarizableText, Keyword: "", Sentiment: SentimentNeutral}}
	}

	out := make([]Paragraph, 0, maxParagraphs)
	for _, item := range items {
		if len(out) >= maxParagraphs {
			break
		}
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Paragraph{
			Summary:   processParagraphSummary(obj["summary"]),
			Keyword:   ProcessKeyword(obj["keyword"], 0),
			Sentiment: canonicalSentiment(toString(obj["sentiment"])),
		})
	}

	if len(out) == 0 {
		return []Paragraph{{Summary: unsummarizableText, Keyword: "", Sentiment: SentimentNeutral}}
	}
	return out
}

func processParagraphSummary(raw any) string {
	s := toSummaryString(raw)
	if s == "" {
		return missingParaText
	}
	if isParagraphLeak(s) {
		return missingParaText
	}

	best := selectBestSentence(s)
	best = applyVerbToNounRewrite(best)
	best = collapseWhitespace(best)
	if best == "" {
		return missingParaText
	}
	return best
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return formatFloat(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	// Rare path: a decoded numeric field. encoding/json decodes all JSON
	// numbers as float64; none of the artifact's schema fields are
	// numeric in practice, but formatting one defensively beats
	// dropping it silently.
	return strconv.FormatFloat(f, 'g', -1, 64)
}
