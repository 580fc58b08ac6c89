package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateExpressionRejectsEmpty(t *testing.T) {
	assert.Error(t, ValidateExpression(""))
}

func TestValidateExpressionRejectsTooLong(t *testing.T) {
	assert.Error(t, ValidateExpression(strings.Repeat("a", MaxExpressionLength+1)))
}

func TestValidateExpressionRejectsControlCharacters(t *testing.T) {
	assert.Error(t, ValidateExpression("x\x00y"))
}

func TestValidateExpressionAcceptsOrdinaryExpression(t *testing.T) {
	assert.NoError(t, ValidateExpression("x + 1"))
}

func TestValidateSourcePathRejectsTraversal(t *testing.T) {
	assert.Error(t, ValidateSourcePath("../etc/passwd"))
	assert.Error(t, ValidateSourcePath("a/../../b.lua"))
}

func TestValidateSourcePathAcceptsOrdinaryPath(t *testing.T) {
	assert.NoError(t, ValidateSourcePath("scripts/main.lua"))
}
