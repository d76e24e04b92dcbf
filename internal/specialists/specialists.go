// Package specialists provides the built-in specialist handlers for each
// intent category. They answer from small in-process catalogs and order
// books; the dispatch engine sees only the uniform Handler capability and
// stays agnostic to what happens in here. Production deployments swap these
// for handlers backed by real shop systems or a language model.
package specialists

import (
	"shopdesk/internal/registry"
	"shopdesk/internal/types"
)

// RegisterDefaults binds one built-in handler factory per category.
// Factories run lazily, at most once per category (registry single-flight).
func RegisterDefaults(r *registry.Registry) error {
	bindings := []struct {
		category string
		factory  registry.Factory
	}{
		{types.CategoryProductLookup, func() (registry.Handler, error) {
			return NewProductLookupHandler(DefaultCatalog()), nil
		}},
		{types.CategoryOrderStatus, func() (registry.Handler, error) {
			return NewOrderStatusHandler(DefaultOrderBook()), nil
		}},
		{types.CategoryRecommendations, func() (registry.Handler, error) {
			return NewRecommendationHandler(DefaultCatalog()), nil
		}},
		{types.CategoryPromotions, func() (registry.Handler, error) {
			return NewPromotionsHandler(DefaultPromotions()), nil
		}},
		{types.CategoryGeneral, func() (registry.Handler, error) {
			return NewGeneralHandler(), nil
		}},
	}

	for _, b := range bindings {
		if err := r.Register(b.category, b.factory); err != nil {
			return err
		}
	}
	return nil
}

// Product is one catalog item.
type Product struct {
	SKU      string
	Name     string
	PriceEUR float64
	Segment  string
	InStock  bool
}

// DefaultCatalog returns the demo catalog shared by the lookup and
// recommendation specialists.
func DefaultCatalog() []Product {
	return []Product{
		{SKU: "KB-100", Name: "mechanical keyboard", PriceEUR: 89.90, Segment: "office", InStock: true},
		{SKU: "MS-210", Name: "wireless mouse", PriceEUR: 34.50, Segment: "office", InStock: true},
		{SKU: "HS-320", Name: "noise cancelling headset", PriceEUR: 129.00, Segment: "office", InStock: false},
		{SKU: "CM-450", Name: "webcam", PriceEUR: 59.00, Segment: "office", InStock: true},
		{SKU: "SW-510", Name: "smart watch", PriceEUR: 199.00, Segment: "fitness", InStock: true},
		{SKU: "EB-600", Name: "earbuds", PriceEUR: 79.00, Segment: "fitness", InStock: true},
	}
}

// OrderRecord is one entry in the demo order book.
type OrderRecord struct {
	OrderID  string
	Status   string
	Carrier  string
	ETA      string
}

// DefaultOrderBook returns the demo order book.
func DefaultOrderBook() map[string]OrderRecord {
	return map[string]OrderRecord{
		"10042": {OrderID: "10042", Status: "shipped", Carrier: "GLS", ETA: "2 business days"},
		"10043": {OrderID: "10043", Status: "processing", Carrier: "", ETA: "ships tomorrow"},
		"10044": {OrderID: "10044", Status: "delivered", Carrier: "DPD", ETA: ""},
	}
}

// Promotion is one active campaign.
type Promotion struct {
	Code        string
	Description string
}

// DefaultPromotions returns the currently running campaigns.
func DefaultPromotions() []Promotion {
	return []Promotion{
		{Code: "WELCOME10", Description: "10% off your first order"},
		{Code: "OFFICE15", Description: "15% off office accessories this week"},
	}
}
