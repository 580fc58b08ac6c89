package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowRespectsBurstThenDenies(t *testing.T) {
	l := NewLimiter()
	allowed := 0
	for i := 0; i < operationLimits["setDataBreakpoints"].burst+5; i++ {
		if l.Allow("setDataBreakpoints") {
			allowed++
		}
	}
	assert.Equal(t, operationLimits["setDataBreakpoints"].burst, allowed)
}

func TestAllowUsesDefaultForUnknownOperation(t *testing.T) {
	l := NewLimiter()
	assert.True(t, l.Allow("someUnlistedCommand"))
}

func TestWaitReturnsContextError(t *testing.T) {
	l := NewLimiter()
	for l.Allow("evaluate") {
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "evaluate"))
}
