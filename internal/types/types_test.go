package types

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationState_AppendTurnCapsHistory(t *testing.T) {
	state := NewConversationState("s1")

	for i := 0; i < 6; i++ {
		state.AppendTurn(Turn{Role: RoleUser, Text: fmt.Sprintf("turn %d", i), Timestamp: time.Now()}, 4)
	}

	require.Len(t, state.TurnHistory, 4)
	assert.Equal(t, "turn 2", state.TurnHistory[0].Text, "oldest turns drop first")
	assert.Equal(t, "turn 5", state.TurnHistory[3].Text)
}

func TestConversationState_AppendTurnZeroLimitIsUnbounded(t *testing.T) {
	state := NewConversationState("s1")

	for i := 0; i < 10; i++ {
		state.AppendTurn(Turn{Role: RoleUser, Text: "x"}, 0)
	}
	assert.Len(t, state.TurnHistory, 10)
}

func TestConversationState_Clone(t *testing.T) {
	state := NewConversationState("s1")
	state.ActiveCategory = CategoryOrderStatus
	state.ErrorCount = 1
	state.ComplianceFlags["marketing"] = true
	state.UserContext = map[string]string{"segment": "office"}
	state.AppendTurn(Turn{Role: RoleUser, Text: "hello"}, 0)

	clone := state.Clone()
	clone.ErrorCount = 9
	clone.ComplianceFlags["marketing"] = false
	clone.UserContext["segment"] = "fitness"
	clone.TurnHistory[0].Text = "mutated"

	assert.Equal(t, 1, state.ErrorCount)
	assert.True(t, state.HasFlag("marketing"))
	assert.Equal(t, "office", state.UserContext["segment"])
	assert.Equal(t, "hello", state.TurnHistory[0].Text)
}

func TestConversationState_HasFlag(t *testing.T) {
	var state ConversationState
	assert.False(t, state.HasFlag("marketing"), "nil flag map reads as nothing granted")

	state.ComplianceFlags = map[string]bool{"marketing": true, "profiling": false}
	assert.True(t, state.HasFlag("marketing"))
	assert.False(t, state.HasFlag("profiling"), "a revoked flag is not granted")
	assert.False(t, state.HasFlag("unknown"))
}

func TestClassificationResult_Top(t *testing.T) {
	var empty ClassificationResult
	top := empty.Top()
	assert.Equal(t, CategoryGeneral, top.Category, "zero value still yields a dispatch target")
	assert.Greater(t, top.Score, 0.0)

	ranked := ClassificationResult{Ranked: []RankedCategory{
		{Category: CategoryOrderStatus, Score: 0.7},
		{Category: CategoryGeneral, Score: 0.05},
	}}
	assert.Equal(t, CategoryOrderStatus, ranked.Top().Category)
}

func TestClassificationResult_At(t *testing.T) {
	ranked := ClassificationResult{Ranked: []RankedCategory{
		{Category: CategoryOrderStatus, Score: 0.7},
		{Category: CategoryGeneral, Score: 0.05},
	}}

	first, ok := ranked.At(0)
	require.True(t, ok)
	assert.Equal(t, CategoryOrderStatus, first.Category)

	_, ok = ranked.At(2)
	assert.False(t, ok)

	_, ok = ranked.At(-1)
	assert.False(t, ok)
}
