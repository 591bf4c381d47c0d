package preprocess

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreprocessEmptyYieldsSentinel(t *testing.T) {
	require.Equal(t, noDialogue, Preprocess(nil))
	require.Equal(t, noDialogue, Preprocess([]Segment{{Transcript: "   ", RecType: 4}}))
}

func TestPreprocessMapsSpeakerLabels(t *testing.T) {
	out := Preprocess([]Segment{
		{Transcript: "안녕하세요", RecType: 4},
		{Transcript: "네 말씀하세요", RecType: 2},
		{Transcript: "확인 부탁드립니다", RecType: 7},
	})
	require.Equal(t, "나 > 안녕하세요\n상대방 > 네 말씀하세요\n화자7 > 확인 부탁드립니다", out)
}

func TestPreprocessDropsExactAdjacentRepeat(t *testing.T) {
	out := Preprocess([]Segment{
		{Transcript: "카드 문의입니다", RecType: 4},
		{Transcript: "카드 문의입니다", RecType: 4},
	})
	require.Equal(t, "나 > 카드 문의입니다", out)
}

func TestPreprocessDropsShortFillerRepeatedBySameSpeaker(t *testing.T) {
	out := Preprocess([]Segment{
		{Transcript: "카드가 안 돼요", RecType: 2},
		{Transcript: "네", RecType: 2},
	})
	require.Equal(t, "상대방 > 카드가 안 돼요", out)
}

func TestPreprocessMergesSubstringUtterances(t *testing.T) {
	out := Preprocess([]Segment{
		{Transcript: "카드 사용", RecType: 4},
		{Transcript: "카드 사용 문의입니다", RecType: 4},
	})
	require.Equal(t, "나 > 카드 사용 문의입니다", out)
}

func TestCleanTextStripsDisallowedRunes(t *testing.T) {
	require.Equal(t, "hello world!", cleanText("hello   world!@#$%"))
}
