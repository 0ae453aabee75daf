package shipping

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type selects how the base shipping fee is computed for an order.
type Type string

const (
	TypeFlatRate    Type = "FLAT_RATE"
	TypePerItem     Type = "PER_ITEM"
	TypeWeightBased Type = "WEIGHT_BASED"
)

// Zone is the delivery zone a destination address falls into, relative to
// the store's configured area lists.
type Zone string

const (
	ZoneLocal    Zone = "local"
	ZoneRegional Zone = "regional"
	ZoneOther    Zone = "other"
)

// Setting holds a store's full shipping configuration. All monetary fields
// are in minor units; weights are in grams with weight fees quoted per kg.
type Setting struct {
	StoreID uuid.UUID `json:"storeId"`
	Enabled bool      `json:"enabled"`
	Type    Type      `json:"shippingType"`

	FlatRate int64 `json:"flatRate"`

	PerItemFee int64  `json:"perItemFee"`
	MaxItemFee *int64 `json:"maxItemFee,omitempty"`

	BaseWeightGrams     int64 `json:"baseWeightGrams"`
	BaseWeightFee       int64 `json:"baseWeightFee"`
	AdditionalWeightFee int64 `json:"additionalWeightFee"`

	FreeShippingMin int64 `json:"freeShippingMin"`

	LocalDeliveryFee    *int64   `json:"localDeliveryFee,omitempty"`
	RegionalDeliveryFee *int64   `json:"regionalDeliveryFee,omitempty"`
	LocalAreas          []string `json:"localAreas,omitempty"`
	RegionalAreas       []string `json:"regionalAreas,omitempty"`

	EnableCOD bool  `json:"enableCod"`
	CODFee    int64 `json:"codFee"`

	EnableExpress bool  `json:"enableExpress"`
	ExpressFee    int64 `json:"expressFee"`

	EstimatedDays        int32 `json:"estimatedDays"`
	ExpressEstimatedDays int32 `json:"expressEstimatedDays"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultSetting is what a store without a saved configuration gets:
// shipping disabled, so every quote resolves to zero.
func DefaultSetting(storeID uuid.UUID) Setting {
	return Setting{StoreID: storeID, Type: TypeFlatRate}
}

// CODAvailable reports whether cash-on-delivery may be selected at checkout.
func (s Setting) CODAvailable() bool {
	return s.Enabled && s.EnableCOD
}

// ExpressAvailable reports whether express delivery may be requested.
func (s Setting) ExpressAvailable() bool {
	return s.Enabled && s.EnableExpress
}

// Address is the destination used for zone classification. Matching is done
// on city and province names against the store's configured area lists.
type Address struct {
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// ClassifyDestination maps an address onto a delivery zone. Local wins over
// regional when both lists match.
func (s Setting) ClassifyDestination(addr Address) Zone {
	if matchArea(s.LocalAreas, addr) {
		return ZoneLocal
	}
	if matchArea(s.RegionalAreas, addr) {
		return ZoneRegional
	}
	return ZoneOther
}

func matchArea(areas []string, addr Address) bool {
	city := strings.ToLower(strings.TrimSpace(addr.City))
	province := strings.ToLower(strings.TrimSpace(addr.Province))
	for _, a := range areas {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if a == city || a == province {
			return true
		}
	}
	return false
}
