package breakpoints

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFunctionCandidateNamesFullSet(t *testing.T) {
	frame := &fakeFrame{funcName: "withdraw", receiver: "Account"}
	got := FunctionCandidateNames(frame, "bank")

	assert.ElementsMatch(t, []string{
		"withdraw",
		"bank.withdraw",
		"Account.withdraw",
		"bank.Account.withdraw",
	}, got)
}

func TestFunctionCandidateNamesNoReceiverNoModule(t *testing.T) {
	frame := &fakeFrame{funcName: "main"}
	assert.Equal(t, []string{"main"}, FunctionCandidateNames(frame, ""))
}

func TestFunctionCandidateNamesEmptyWithoutFuncName(t *testing.T) {
	frame := &fakeFrame{}
	assert.Empty(t, FunctionCandidateNames(frame, "mod"))
}
