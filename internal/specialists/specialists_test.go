package specialists

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopdesk/internal/registry"
	"shopdesk/internal/types"
)

func TestRegisterDefaults(t *testing.T) {
	r := registry.New()
	require.NoError(t, RegisterDefaults(r))

	assert.Equal(t, []string{
		types.CategoryProductLookup,
		types.CategoryOrderStatus,
		types.CategoryRecommendations,
		types.CategoryPromotions,
		types.CategoryGeneral,
	}, r.Categories())

	assert.Error(t, RegisterDefaults(r), "double registration is a wiring bug")
}

func TestProductLookupHandler(t *testing.T) {
	h := NewProductLookupHandler(DefaultCatalog())

	text, confidence, meta, err := h.Handle(context.Background(), "how much is the Wireless Mouse?", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "34.50 EUR")
	assert.Contains(t, text, "in stock")
	assert.InDelta(t, 0.9, confidence, 1e-9)
	assert.Equal(t, "MS-210", meta["sku"])

	text, _, _, err = h.Handle(context.Background(), "is the noise cancelling headset available?", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "out of stock")

	text, confidence, _, err = h.Handle(context.Background(), "do you sell garden gnomes?", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "couldn't find")
	assert.Less(t, confidence, 0.4, "an unmatched lookup is a low-confidence answer, not a fault")
}

func TestOrderStatusHandler(t *testing.T) {
	h := NewOrderStatusHandler(DefaultOrderBook())

	text, confidence, meta, err := h.Handle(context.Background(), "where is my order 10042?", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "shipped with GLS")
	assert.InDelta(t, 0.9, confidence, 1e-9)
	assert.Equal(t, "shipped", meta["status"])

	// Order id resolved from user context when the message has none.
	text, _, _, err = h.Handle(context.Background(), "hol a csomagom?", nil, map[string]string{"order_id": "10044"})
	require.NoError(t, err)
	assert.Contains(t, text, "delivered")

	text, confidence, _, err = h.Handle(context.Background(), "where is my order?", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "order number")
	assert.InDelta(t, 0.5, confidence, 1e-9)
}

func TestFindOrderID(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"where is order 10042?", "10042"},
		{"order #10043, please", "10043"},
		{"my zip is 12 and order 10044", "10044"},
		{"called you 3 times", ""},
		{"card number 4111111111111111", ""},
		{"no numbers here", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, findOrderID(tt.message), "message %q", tt.message)
	}
}

func TestRecommendationHandler(t *testing.T) {
	h := NewRecommendationHandler(DefaultCatalog())

	text, confidence, meta, err := h.Handle(context.Background(), "what should I buy?", nil, map[string]string{"segment": "fitness"})
	require.NoError(t, err)
	assert.Contains(t, text, "smart watch")
	assert.NotContains(t, text, "keyboard")
	assert.InDelta(t, 0.85, confidence, 1e-9)
	assert.Equal(t, "fitness", meta["segment"])

	// Without a segment the picks span the whole in-stock catalog at
	// lower confidence.
	_, confidence, meta, err = h.Handle(context.Background(), "recommend something", nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, confidence, 1e-9)
	assert.Equal(t, 3, meta["count"])

	empty := NewRecommendationHandler(nil)
	text, confidence, _, err = empty.Handle(context.Background(), "recommend something", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "new stock")
	assert.InDelta(t, 0.3, confidence, 1e-9)
}

func TestPromotionsHandler(t *testing.T) {
	h := NewPromotionsHandler(DefaultPromotions())

	text, confidence, meta, err := h.Handle(context.Background(), "any deals?", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "WELCOME10")
	assert.Contains(t, text, "OFFICE15")
	assert.InDelta(t, 0.85, confidence, 1e-9)
	assert.Equal(t, 2, meta["count"])

	quiet := NewPromotionsHandler(nil)
	text, _, _, err = quiet.Handle(context.Background(), "any deals?", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "no promotions")
}

func TestGeneralHandler(t *testing.T) {
	h := NewGeneralHandler()

	text, confidence, _, err := h.Handle(context.Background(), "hello", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "Thanks for reaching out")
	assert.InDelta(t, 0.6, confidence, 1e-9)

	text, _, _, err = h.Handle(context.Background(), "hello again", []types.Turn{{Role: types.RoleUser, Text: "hi"}}, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "Happy to help")
}
