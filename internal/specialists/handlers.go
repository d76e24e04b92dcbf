package specialists

import (
	"context"
	"fmt"
	"strings"

	"shopdesk/internal/types"
)

// =============================================================================
// PRODUCT LOOKUP
// =============================================================================

// ProductLookupHandler answers price and availability questions by substring
// matching product names in the message.
type ProductLookupHandler struct {
	catalog []Product
}

// NewProductLookupHandler creates a lookup handler over the catalog.
func NewProductLookupHandler(catalog []Product) *ProductLookupHandler {
	return &ProductLookupHandler{catalog: catalog}
}

// Handle implements registry.Handler.
func (h *ProductLookupHandler) Handle(_ context.Context, message string, _ []types.Turn, _ map[string]string) (string, float64, map[string]any, error) {
	msg := strings.ToLower(message)
	for _, p := range h.catalog {
		if !strings.Contains(msg, p.Name) {
			continue
		}
		stock := "in stock"
		if !p.InStock {
			stock = "currently out of stock"
		}
		text := fmt.Sprintf("The %s (%s) costs %.2f EUR and is %s.", p.Name, p.SKU, p.PriceEUR, stock)
		return text, 0.9, map[string]any{"sku": p.SKU}, nil
	}
	return "I couldn't find that product in our catalog. Could you give me the exact product name?",
		0.35, nil, nil
}

// =============================================================================
// ORDER STATUS
// =============================================================================

// OrderStatusHandler looks for an order number token in the message and
// reports its status from the order book.
type OrderStatusHandler struct {
	orders map[string]OrderRecord
}

// NewOrderStatusHandler creates a status handler over the order book.
func NewOrderStatusHandler(orders map[string]OrderRecord) *OrderStatusHandler {
	return &OrderStatusHandler{orders: orders}
}

// Handle implements registry.Handler. The order id may also arrive via
// user context (webshop adapters resolve it from the logged-in account).
func (h *OrderStatusHandler) Handle(_ context.Context, message string, _ []types.Turn, userContext map[string]string) (string, float64, map[string]any, error) {
	id := findOrderID(message)
	if id == "" && userContext != nil {
		id = userContext["order_id"]
	}

	if record, ok := h.orders[id]; ok {
		var text string
		switch record.Status {
		case "shipped":
			text = fmt.Sprintf("Order %s has shipped with %s and should arrive in %s.", record.OrderID, record.Carrier, record.ETA)
		case "delivered":
			text = fmt.Sprintf("Order %s was delivered. Let me know if anything is missing.", record.OrderID)
		default:
			text = fmt.Sprintf("Order %s is %s (%s).", record.OrderID, record.Status, record.ETA)
		}
		return text, 0.9, map[string]any{"order_id": record.OrderID, "status": record.Status}, nil
	}

	return "I couldn't locate that order. Could you share your order number (it's in your confirmation email)?",
		0.5, nil, nil
}

// findOrderID returns the first all-digit token of plausible order-id length.
func findOrderID(message string) string {
	for _, tok := range strings.Fields(message) {
		tok = strings.Trim(tok, ".,;:!?#()")
		if len(tok) < 4 || len(tok) > 10 {
			continue
		}
		digits := true
		for _, r := range tok {
			if r < '0' || r > '9' {
				digits = false
				break
			}
		}
		if digits {
			return tok
		}
	}
	return ""
}

// =============================================================================
// RECOMMENDATIONS
// =============================================================================

// RecommendationHandler suggests in-stock products, preferring the shopper's
// segment when user context carries one.
type RecommendationHandler struct {
	catalog []Product
}

// NewRecommendationHandler creates a recommendation handler over the catalog.
func NewRecommendationHandler(catalog []Product) *RecommendationHandler {
	return &RecommendationHandler{catalog: catalog}
}

// Handle implements registry.Handler.
func (h *RecommendationHandler) Handle(_ context.Context, _ string, _ []types.Turn, userContext map[string]string) (string, float64, map[string]any, error) {
	segment := ""
	if userContext != nil {
		segment = userContext["segment"]
	}

	var picks []string
	for _, p := range h.catalog {
		if !p.InStock {
			continue
		}
		if segment != "" && p.Segment != segment {
			continue
		}
		picks = append(picks, fmt.Sprintf("%s (%.2f EUR)", p.Name, p.PriceEUR))
		if len(picks) == 3 {
			break
		}
	}
	if len(picks) == 0 {
		return "I don't have a good recommendation right now, but new stock arrives weekly.",
			0.3, nil, nil
	}

	confidence := 0.7
	if segment != "" {
		confidence = 0.85
	}
	return "You might like: " + strings.Join(picks, ", ") + ".",
		confidence, map[string]any{"segment": segment, "count": len(picks)}, nil
}

// =============================================================================
// PROMOTIONS
// =============================================================================

// PromotionsHandler lists running campaigns. Dispatch to this category is
// consent-gated upstream by the interceptor; the handler itself assumes the
// grant was checked.
type PromotionsHandler struct {
	promotions []Promotion
}

// NewPromotionsHandler creates a promotions handler.
func NewPromotionsHandler(promotions []Promotion) *PromotionsHandler {
	return &PromotionsHandler{promotions: promotions}
}

// Handle implements registry.Handler.
func (h *PromotionsHandler) Handle(_ context.Context, _ string, _ []types.Turn, _ map[string]string) (string, float64, map[string]any, error) {
	if len(h.promotions) == 0 {
		return "There are no promotions running at the moment.", 0.6, nil, nil
	}
	var lines []string
	for _, p := range h.promotions {
		lines = append(lines, fmt.Sprintf("%s (%s)", p.Code, p.Description))
	}
	return "Current offers: " + strings.Join(lines, "; ") + ".",
		0.85, map[string]any{"count": len(h.promotions)}, nil
}

// =============================================================================
// GENERAL
// =============================================================================

// GeneralHandler is the fallback specialist: always succeeds with a helpful
// redirect so the engine always has a working target.
type GeneralHandler struct{}

// NewGeneralHandler creates the fallback handler.
func NewGeneralHandler() *GeneralHandler {
	return &GeneralHandler{}
}

// Handle implements registry.Handler.
func (h *GeneralHandler) Handle(_ context.Context, _ string, history []types.Turn, _ map[string]string) (string, float64, map[string]any, error) {
	greeting := "Thanks for reaching out!"
	if len(history) > 0 {
		greeting = "Happy to help further."
	}
	return greeting + " I can check product prices and availability, track orders, suggest products, or list current offers. What would you like to do?",
		0.6, nil, nil
}
