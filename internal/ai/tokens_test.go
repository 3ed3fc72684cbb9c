package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("ABC"))
	assert.Equal(t, 1, EstimateTokens("ABCD"))
	assert.Equal(t, 2, EstimateTokens("ABCDE"))
	assert.Equal(t, 250, EstimateTokens(strings.Repeat("A", 1000)))
}

func TestEstimateTokensFromObject(t *testing.T) {
	assert.Equal(t, 0, EstimateTokensFromObject(nil))
	assert.Equal(t, 1, EstimateTokensFromObject("ABC"))
	assert.Equal(t, 1, EstimateTokensFromObject([]byte("ABC")))

	// {"a":1} 共 7 个字符
	assert.Equal(t, 2, EstimateTokensFromObject(map[string]int{"a": 1}))

	// map 键有序，结果稳定
	v := map[string]any{"z": "x", "a": []int{1, 2, 3}}
	assert.Equal(t, EstimateTokensFromObject(v), EstimateTokensFromObject(v))
}

func TestByteEstimator(t *testing.T) {
	var e ByteEstimator
	assert.Equal(t, 0, e.Estimate(nil))
	assert.Equal(t, 0, e.Estimate([]byte{}))
	assert.Equal(t, 250, e.Estimate(make([]byte, 1000)))
	assert.Equal(t, 1, e.Estimate("hi"))
}
