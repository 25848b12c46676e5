package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/auraforge/relay/internal/domain"
)

func TestEstimateTokens(t *testing.T) {
	t.Run("should estimate one token per four characters rounded up", func(t *testing.T) {
		require.Zero(t, domain.EstimateTokens(""))
		require.Equal(t, 1, domain.EstimateTokens("a"))
		require.Equal(t, 1, domain.EstimateTokens("abcd"))
		require.Equal(t, 2, domain.EstimateTokens("abcde"))
		require.Equal(t, 25, domain.EstimateTokens(string(make([]byte, 100))))
	})
}

func TestEstimateInputTokens(t *testing.T) {
	t.Run("should sum over all message text", func(t *testing.T) {
		messages := []domain.Message{
			{Role: "system", Content: "abcd"},
			{Role: "user", Content: "abcdefgh"},
		}

		require.Equal(t, 3, domain.EstimateInputTokens(messages))
	})

	t.Run("should use text parts of multimodal messages", func(t *testing.T) {
		messages := []domain.Message{{
			Role: "user",
			Parts: []domain.Part{
				{Kind: domain.PartText, Text: "abcd"},
				{Kind: domain.PartImage, Data: []byte{0xFF, 0xFF}},
			},
		}}

		require.Equal(t, 1, domain.EstimateInputTokens(messages))
	})
}
