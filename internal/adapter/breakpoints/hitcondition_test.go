package breakpoints

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateHitConditionEveryN(t *testing.T) {
	assert.True(t, EvaluateHitCondition("% 3", 3))
	assert.True(t, EvaluateHitCondition("% 3", 6))
	assert.False(t, EvaluateHitCondition("% 3", 4))
	assert.False(t, EvaluateHitCondition("%0", 0))
}

func TestEvaluateHitConditionEquals(t *testing.T) {
	assert.True(t, EvaluateHitCondition("5", 5))
	assert.True(t, EvaluateHitCondition("== 5", 5))
	assert.False(t, EvaluateHitCondition("5", 4))
}

func TestEvaluateHitConditionAtLeast(t *testing.T) {
	assert.True(t, EvaluateHitCondition(">= 5", 5))
	assert.True(t, EvaluateHitCondition(">=5", 10))
	assert.False(t, EvaluateHitCondition(">= 5", 4))
}

func TestEvaluateHitConditionPermissiveFallback(t *testing.T) {
	assert.True(t, EvaluateHitCondition("not a number", 1))
	assert.True(t, EvaluateHitCondition("", 1))
}
