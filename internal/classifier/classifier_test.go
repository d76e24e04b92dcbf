package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopdesk/internal/types"
)

func TestClassify_RankingIsTotalAndFallbackPositive(t *testing.T) {
	c := New(nil, 0)

	messages := []string{
		"hol a rendelésem?",
		"how much is the wireless mouse",
		"qwertyuiop zxcvbnm",
		"!!!",
		"do you have any discount codes",
	}
	for _, msg := range messages {
		result := c.Classify(msg, nil)
		require.Len(t, result.Ranked, 5, "ranking covers every category for %q", msg)

		foundGeneral := false
		for _, rc := range result.Ranked {
			assert.GreaterOrEqual(t, rc.Score, 0.0)
			assert.LessOrEqual(t, rc.Score, 1.0)
			if rc.Category == types.CategoryGeneral {
				foundGeneral = true
				assert.Greater(t, rc.Score, 0.0, "fallback score must be positive for %q", msg)
			}
		}
		assert.True(t, foundGeneral)
	}
}

func TestClassify_OrderStatusWins(t *testing.T) {
	c := New(nil, 0)

	result := c.Classify("hol a rendelésem?", nil)
	assert.Equal(t, types.CategoryOrderStatus, result.Top().Category)

	result = c.Classify("where is my order, do you have tracking info?", nil)
	assert.Equal(t, types.CategoryOrderStatus, result.Top().Category)
}

func TestClassify_NoMatchFallsBackToGeneral(t *testing.T) {
	c := New(nil, 0)

	result := c.Classify("qwertyuiop zxcvbnm", nil)
	assert.Equal(t, types.CategoryGeneral, result.Top().Category,
		"general is chosen when nothing else matches")
}

func TestClassify_Deterministic(t *testing.T) {
	c := New(nil, 0)

	a := c.Classify("how much is the smart watch", nil)
	b := c.Classify("how much is the smart watch", nil)
	assert.Equal(t, a, b)
}

func TestClassify_TieBreakByDeclarationOrder(t *testing.T) {
	c := New(nil, 0)

	// Nothing matches: all non-general categories sit at the same floor,
	// so they must appear in table order behind general.
	result := c.Classify("qwertyuiop zxcvbnm", nil)
	require.Len(t, result.Ranked, 5)
	assert.Equal(t, types.CategoryGeneral, result.Ranked[0].Category)
	assert.Equal(t, types.CategoryProductLookup, result.Ranked[1].Category)
	assert.Equal(t, types.CategoryOrderStatus, result.Ranked[2].Category)
	assert.Equal(t, types.CategoryRecommendations, result.Ranked[3].Category)
	assert.Equal(t, types.CategoryPromotions, result.Ranked[4].Category)
}

func TestClassify_StickyBonusPreventsThrashing(t *testing.T) {
	c := New(nil, 0)

	state := types.NewConversationState("s1")
	state.ActiveCategory = types.CategoryProductLookup

	// "and the price?" style follow-up with no strong phrase match stays
	// with the active specialist instead of falling to general.
	result := c.Classify("és fehérben?", state)
	assert.Equal(t, types.CategoryProductLookup, result.Top().Category)

	// A clear signal for another category still overrides stickiness.
	result = c.Classify("where is my order 10042, is there tracking?", state)
	assert.Equal(t, types.CategoryOrderStatus, result.Top().Category)
}

func TestClassify_LongMessageNormalization(t *testing.T) {
	c := New(nil, 0)

	short := c.Classify("price?", nil)
	long := c.Classify("price? well let me tell you a very long story about my day first because it is relevant somehow maybe", nil)

	require.Equal(t, types.CategoryProductLookup, short.Top().Category)
	assert.Greater(t, short.Top().Score, long.Ranked[0].Score,
		"the same match in a longer message scores lower")
}

func TestSetTable_IgnoresEmptyTable(t *testing.T) {
	c := New(nil, 0)
	before := c.Categories()

	c.SetTable(nil)
	assert.Equal(t, before, c.Categories())
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "intents.yaml")
	content := `categories:
  - category: order-status
    phrases:
      - text: "order"
        weight: 0.9
  - category: returns
    floor: 0.02
    phrases:
      - text: "refund"
        weight: 0.9
      - text: "return"
        weight: 0.8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	table, err := LoadTable(path)
	require.NoError(t, err)

	// The general fallback is appended when the curated file omits it.
	require.Len(t, table, 3)
	assert.Equal(t, types.CategoryGeneral, table[2].Category)
	assert.Greater(t, table[2].Floor, 0.0)

	// Omitted floors get defaults below the general floor.
	assert.Equal(t, categoryFloor, table[0].Floor)
	assert.Equal(t, 0.02, table[1].Floor)

	c := New(table, 0)
	result := c.Classify("I want to return this and get a refund", nil)
	assert.Equal(t, "returns", result.Top().Category)
}

func TestLoadTable_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadTable(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("categories: [{phrases: []}]"), 0644))
	_, err = LoadTable(bad)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("categories: []"), 0644))
	_, err = LoadTable(empty)
	assert.Error(t, err)
}
