package llmengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockEchoResponderWrapsPrompt(t *testing.T) {
	m := NewMock(0, nil)
	res, err := m.Complete(context.Background(), "안녕하세요 상담 내용입니다", DecodingOptions{})
	require.NoError(t, err)
	require.Equal(t, FinishStop, res.FinishReason)
	require.Contains(t, res.Text, "summary")
}

func TestMockContextWindowDefaultsWhenZero(t *testing.T) {
	m := NewMock(0, nil)
	require.Equal(t, 4096, m.ContextWindow())
}

func TestMockContextWindowHonorsExplicitValue(t *testing.T) {
	m := NewMock(8192, nil)
	require.Equal(t, 8192, m.ContextWindow())
}

func TestMockTracksCallCountAndLastPrompt(t *testing.T) {
	m := NewMock(0, nil)
	require.Equal(t, 0, m.CallCount())
	require.Equal(t, "", m.LastPrompt())

	_, err := m.Complete(context.Background(), "first", DecodingOptions{})
	require.NoError(t, err)
	_, err = m.Complete(context.Background(), "second", DecodingOptions{})
	require.NoError(t, err)

	require.Equal(t, 2, m.CallCount())
	require.Equal(t, "second", m.LastPrompt())
}

func TestMockHonorsContextCancellation(t *testing.T) {
	m := NewMock(0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Complete(ctx, "anything", DecodingOptions{})
	require.Error(t, err)
}

func TestTruncatingResponderRetriesThenStops(t *testing.T) {
	m := NewMock(0, TruncatingResponder("MARK", "partial", "full response"))

	res, err := m.Complete(context.Background(), "prompt MARK one", DecodingOptions{})
	require.NoError(t, err)
	require.Equal(t, FinishLength, res.FinishReason)
	require.Equal(t, "partial", res.Text)

	res, err = m.Complete(context.Background(), "prompt MARK one", DecodingOptions{MaxTokens: 2000})
	require.NoError(t, err)
	require.Equal(t, FinishStop, res.FinishReason)
	require.Equal(t, "full response", res.Text)
}

func TestTruncatingResponderIgnoresPromptsWithoutMarker(t *testing.T) {
	m := NewMock(0, TruncatingResponder("MARK", "partial", "full response"))
	res, err := m.Complete(context.Background(), "no marker here", DecodingOptions{})
	require.NoError(t, err)
	require.Equal(t, FinishStop, res.FinishReason)
	require.Equal(t, "full response", res.Text)
}
