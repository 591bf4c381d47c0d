package postprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProcessSummaryAppliesLengthGate(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "가나다라"
	}
	got := ProcessSummary(long)
	require.True(t, len(got) > maxSummaryBytes)
	require.Contains(t, got, RequeryPrefix)
}

func TestProcessSummaryLengthGateIsIdempotent(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "가나다라"
	}
	once := ProcessSummary(long)
	twice := ProcessSummary(once)
	require.Equal(t, once, twice, "g(g(x)) must equal g(x)")
}

func TestProcessSummaryNeverTruncates(t *testing.T) {
	s := "카드 사용 문의 드립니다"
	got := ProcessSummary(s)
	// The gate only prefixes; it must never drop characters from the
	// (rewritten) body.
	require.Contains(t, got, "카드") // core content survives the rewrite
}

func TestProcessSummaryFiltersExampleLeakage(t *testing.T) {
	got := ProcessSummary("이것은 예시 내용입니다")
	require.Equal(t, missingSummaryText, got)
}

func TestProcessSummaryEmptyInput(t *testing.T) {
	require.Equal(t, unsummarizableText, ProcessSummary(""))
	require.Equal(t, unsummarizableText, ProcessSummary(nil))
}

func TestProcessSummaryAppliesVerbToNounRewrite(t *testing.T) {
	got := ProcessSummary("상담원이 안내했습니다")
	require.Equal(t, "상담원이 안내안내", got)
}

func TestProcessKeywordDedupesPreservingOrderAndCaps(t *testing.T) {
	got := ProcessKeyword("a, b, a, c, d, e, f", 5)
	require.Equal(t, "a, b, c, d, e", got)
}

func TestProcessKeywordIsIdempotent(t *testing.T) {
	once := ProcessKeyword("a, b, c", 5)
	twice := ProcessKeyword(once, 5)
	require.Equal(t, once, twice)
}

func TestProcessKeywordAcceptsList(t *testing.T) {
	got := ProcessKeyword([]any{"x", "y", "x"}, 5)
	require.Equal(t, "x, y", got)
}

func TestProcessKeywordEmptyYieldsSentinel(t *testing.T) {
	require.Equal(t, missingKeywordText, ProcessKeyword("", 5))
}

func TestSentimentNormalizationMapsToCanonical(t *testing.T) {
	cases := map[string]string{
		"긍정":     SentimentWeakPositive,
		"만족":     SentimentWeakPositive,
		"신남":     SentimentWeakPositive,
		"부정":     SentimentWeakNegative,
		"불만":     SentimentWeakNegative,
		"우려":     SentimentWeakNegative,
		"중립":     SentimentNeutral,
		"화남":     SentimentStrongNegative,
		"약한긍정":   SentimentWeakPositive,
		"모르는단어": SentimentNeutral,
	}
	for input, want := range cases {
		require.Equal(t, want, canonicalSentiment(input), "input=%s", input)
	}
}

func TestNormalizeSubstitutesDefaultParagraphWhenMissing(t *testing.T) {
	a := Normalize(map[string]any{"summary": "ok", "keyword": "a"})
	require.Len(t, a.Paragraphs, 1)
	require.Equal(t, unsummarizableText, a.Paragraphs[0].Summary)
	require.Equal(t, SentimentNeutral, a.Paragraphs[0].Sentiment)
}

func TestNormalizeCapsParagraphsAtThree(t *testing.T) {
	raw := map[string]any{
		"paragraphs": []any{
			map[string]any{"summary": "하나", "sentiment": "긍정"},
			map[string]any{"summary": "둘", "sentiment": "긍정"},
			map[string]any{"summary": "셋", "sentiment": "긍정"},
			map[string]any{"summary": "넷", "sentiment": "긍정"},
		},
	}
	a := Normalize(raw)
	require.Len(t, a.Paragraphs, 3)
}

func TestSelectBestSentencePicksHighestScoring(t *testing.T) {
	s := "안녕하세요. 카드 사용 문의 드립니다. 실패했습니다."
	best := selectBestSentence(s)
	require.Contains(t, best, "문의")
}

func TestScoreSentenceCountsEachKeywordOncePerDistinctWord(t *testing.T) {
	// Both candidates sit in the same 10-50 rune length band, so the
	// only thing that can differ is the negative-token contribution of
	// "오류": present once vs. present twice should score identically,
	// since the scorer counts distinct words present, not occurrences.
	filler := strings.Repeat("가", 10)
	once := scoreSentence("오류" + filler)
	twice := scoreSentence("오류오류" + strings.Repeat("가", 8))
	require.Equal(t, once, twice, "repeated occurrences of the same keyword must not change the score")
}

func TestApplyNounFormOnlyNeverAddsLengthPrefix(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "가나다라"
	}
	got := ApplyNounFormOnly(long)
	require.NotContains(t, got, RequeryPrefix)
}
