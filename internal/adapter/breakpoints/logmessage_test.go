package breakpoints

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatLogMessageSubstitutesExpressions(t *testing.T) {
	frame := &fakeFrame{locals: map[string]any{"x": 10, "y": 20}}
	assert.Equal(t, "x=10, y=20", FormatLogMessage("x={x}, y={y}", frame))
}

func TestFormatLogMessageEscapesLiteralBraces(t *testing.T) {
	frame := &fakeFrame{}
	assert.Equal(t, "{not an expr}", FormatLogMessage("{{not an expr}}", frame))
}

func TestFormatLogMessageErrorSubstitutesPlaceholder(t *testing.T) {
	frame := &fakeFrame{}
	assert.Equal(t, "value=<error>", FormatLogMessage("value={missing}", frame))
}
