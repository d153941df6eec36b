package imagestudio

import (
	"math"
)

// imageInputTokens is the flat token cost Gemini charges per input image up to 384px a side.
const imageInputTokens = 258

// TokenEstimator estimates the tokens a request will consume, for rate limiting.
type TokenEstimator interface {
	EstimateTokens(text string, images int) int
}

// SimpleTokenEstimator - fast approximation of token usage
type SimpleTokenEstimator struct {
	SafetyMargin float64
}

func NewSimpleTokenEstimator() *SimpleTokenEstimator {
	return &SimpleTokenEstimator{
		SafetyMargin: 1.2,
	}
}

func (e *SimpleTokenEstimator) EstimateTokens(text string, images int) int {
	total := images * imageInputTokens
	if text == "" {
		return total
	}

	charCount := len([]rune(text))
	tokenEstimate := float64(charCount) / 4.0
	tokenEstimate *= e.SafetyMargin

	return total + int(math.Ceil(tokenEstimate)) + 3
}
