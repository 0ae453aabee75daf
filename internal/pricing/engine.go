package pricing

// Money represents a monetary value stored in minor units.
type Money = int64

// Breakdown is the full priced outcome of an order. It is persisted on the
// order row verbatim so the charged amounts survive later catalog or
// configuration changes.
type Breakdown struct {
	Subtotal    Money  `json:"subtotal"`
	Discount    Money  `json:"discount"`
	ShippingFee Money  `json:"shippingFee"`
	CODFee      Money  `json:"codFee"`
	Total       Money  `json:"total"`
	CouponCode  string `json:"couponCode,omitempty"`
}

// Assemble combines the independently computed components into a final
// breakdown. The discount is clamped so it never pushes the goods portion
// below zero; fees are added after discounting and are never discounted
// themselves. Assembling the same inputs always yields the same breakdown.
func Assemble(subtotal, discount, shippingFee, codFee Money, couponCode string) Breakdown {
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	goods := subtotal - discount
	return Breakdown{
		Subtotal:    subtotal,
		Discount:    discount,
		ShippingFee: shippingFee,
		CODFee:      codFee,
		Total:       goods + shippingFee + codFee,
		CouponCode:  couponCode,
	}
}
