package jsonrepair

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractFencedJSONComplete(t *testing.T) {
	text := "여기 결과가 있습니다:\n```json\n{\"summary\": \"ok\", \"keyword\": \"a,b\", \"paragraphs\": []}\n```\n감사합니다"
	v := Extract(text)
	require.Equal(t, "ok", v["summary"])
	require.Equal(t, "a,b", v["keyword"])
}

func TestExtractFencedGeneric(t *testing.T) {
	text := "```\n{\"summary\": \"ok2\", \"keyword\": \"x\", \"paragraphs\": []}\n```"
	v := Extract(text)
	require.Equal(t, "ok2", v["summary"])
}

func TestExtractUnclosedFenceWithNoClosingBrace(t *testing.T) {
	text := "```json\n{\"summary\": \"ok\", \"keyword\": \"a,b,c,,\", \"paragraphs\": [{\"summary\": \"x\", \"sentiment\": \"긍정\"}]"
	v := Extract(text)
	require.Equal(t, "ok", v["summary"])
	paragraphs, ok := v["paragraphs"].([]any)
	require.True(t, ok)
	require.Len(t, paragraphs, 1)
}

func TestExtractTrailingCommaRemoved(t *testing.T) {
	text := "```json\n{\"summary\": \"ok\", \"keyword\": \"a\",}\n```"
	v := Extract(text)
	require.Equal(t, "ok", v["summary"])
}

func TestExtractDoubledCommaCollapsed(t *testing.T) {
	text := "```json\n{\"summary\": \"ok\",, \"keyword\": \"a\"}\n```"
	v := Extract(text)
	require.Equal(t, "ok", v["summary"])
}

func TestExtractMissingCommaBetweenFields(t *testing.T) {
	text := `{"summary": "ok" "keyword": "a, b"}`
	v := Extract(text)
	require.Equal(t, "ok", v["summary"])
	require.Equal(t, "a, b", v["keyword"])
}

func TestExtractSplitSentimentTokenNormalized(t *testing.T) {
	text := `{"summary": "ok", "keyword": "a", "paragraphs": [{"summary": "x", "sentiment": "약한긍 정"}]}`
	v := Extract(text)
	paragraphs := v["paragraphs"].([]any)
	first := paragraphs[0].(map[string]any)
	require.Equal(t, "약한긍정", first["sentiment"])
}

func TestExtractFieldFallbackWhenNoBraceAtAll(t *testing.T) {
	text := `no braces here but "summary": "fallback ok" and "keyword": "a, b" maybe`
	v := Extract(text)
	require.Equal(t, "fallback ok", v["summary"])
}

func TestExtractTotalFailureYieldsEmptyArtifact(t *testing.T) {
	text := "completely unrelated prose with no structure at all"
	v := Extract(text)
	require.Equal(t, EmptyArtifact(), v)
}

func TestBalanceBracesAndBracketsAppendsClosers(t *testing.T) {
	s := `{"summary": "ok", "paragraphs": [{"summary": "x"`
	out := balanceBracesAndBrackets(s)
	require.Equal(t, `{"summary": "ok", "paragraphs": [{"summary": "x"}]}`, out)
}
