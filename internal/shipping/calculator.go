package shipping

import "errors"

// ErrInvalidConfiguration is returned when an enabled setting carries a
// shipping type the calculator does not understand. Quoting never falls back
// to free shipping on a bad configuration.
var ErrInvalidConfiguration = errors.New("shipping: invalid configuration")

// Input describes one order for quoting. Subtotal is the pre-discount item
// subtotal in minor units; the free-shipping threshold is checked against it
// before any coupon is applied.
type Input struct {
	Subtotal    int64
	ItemCount   int32
	WeightGrams int64
	Zone        Zone
	Express     bool
	COD         bool
}

// Quote is the priced outcome for one order.
type Quote struct {
	ShippingFee   int64 `json:"shippingFee"`
	CODFee        int64 `json:"codFee"`
	EstimatedDays int32 `json:"estimatedDays"`
}

// Calculate prices shipping for one order against this setting.
//
// Disabled settings quote zero across the board. Otherwise the base fee is
// computed from the configured type, a matching zone override replaces it,
// and a requested express upgrade replaces whatever came before - fees never
// stack. The COD surcharge rides alongside the shipping fee and is only
// added when the store has COD enabled.
func (s Setting) Calculate(in Input) (Quote, error) {
	if !s.Enabled {
		return Quote{}, nil
	}

	q := Quote{EstimatedDays: s.EstimatedDays}

	free := s.FreeShippingMin > 0 && in.Subtotal >= s.FreeShippingMin
	if !free {
		fee, err := s.baseFee(in)
		if err != nil {
			return Quote{}, err
		}
		switch in.Zone {
		case ZoneLocal:
			if s.LocalDeliveryFee != nil {
				fee = *s.LocalDeliveryFee
			}
		case ZoneRegional:
			if s.RegionalDeliveryFee != nil {
				fee = *s.RegionalDeliveryFee
			}
		}
		q.ShippingFee = fee
	}

	if in.Express && s.EnableExpress {
		q.ShippingFee = s.ExpressFee
		q.EstimatedDays = s.ExpressEstimatedDays
	}

	if in.COD && s.EnableCOD {
		q.CODFee = s.CODFee
	}
	return q, nil
}

func (s Setting) baseFee(in Input) (int64, error) {
	switch s.Type {
	case TypeFlatRate:
		return s.FlatRate, nil
	case TypePerItem:
		fee := int64(in.ItemCount) * s.PerItemFee
		if s.MaxItemFee != nil && fee > *s.MaxItemFee {
			fee = *s.MaxItemFee
		}
		return fee, nil
	case TypeWeightBased:
		fee := s.BaseWeightFee
		if excess := in.WeightGrams - s.BaseWeightGrams; excess > 0 {
			// AdditionalWeightFee is per kg, excess is in grams.
			fee += (excess*s.AdditionalWeightFee + 500) / 1_000
		}
		return fee, nil
	default:
		return 0, ErrInvalidConfiguration
	}
}
