package domain

// EstimateTokens approximates a token count as ceil(len(text)/4). Used when
// a vendor omits usage counts (local models); a successful call never
// reports zero tokens for non-empty text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// EstimateInputTokens sums the estimate over every message's textual
// content.
func EstimateInputTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Text())
	}
	return total
}
