package pricing

import "testing"

func TestAssembleScenario(t *testing.T) {
	// Subtotal 450.00, fixed coupon 50.00, flat shipping 40.00, COD 10.00.
	b := Assemble(45_000, 5_000, 4_000, 1_000, "SAVE50")
	if b.Total != 45_000 {
		t.Fatalf("total = %d, want 45000", b.Total)
	}
	if b.Discount != 5_000 || b.ShippingFee != 4_000 || b.CODFee != 1_000 {
		t.Fatalf("unexpected breakdown: %+v", b)
	}
	if b.CouponCode != "SAVE50" {
		t.Fatalf("coupon code = %q", b.CouponCode)
	}
}

func TestAssembleIdempotent(t *testing.T) {
	a := Assemble(45_000, 5_000, 4_000, 1_000, "SAVE50")
	b := Assemble(45_000, 5_000, 4_000, 1_000, "SAVE50")
	if a != b {
		t.Fatalf("same inputs gave different breakdowns: %+v vs %+v", a, b)
	}
}

func TestAssembleClampsDiscount(t *testing.T) {
	b := Assemble(3_000, 5_000, 4_000, 0, "BIG")
	if b.Discount != 3_000 {
		t.Fatalf("discount = %d, want clamped to 3000", b.Discount)
	}
	if b.Total != 4_000 {
		t.Fatalf("total = %d, want fees only 4000", b.Total)
	}
}

func TestAssembleNeverNegative(t *testing.T) {
	cases := []struct {
		name                          string
		subtotal, discount, ship, cod Money
	}{
		{"zero everything", 0, 0, 0, 0},
		{"discount exceeds subtotal", 1_000, 9_999, 0, 0},
		{"negative discount ignored", 1_000, -500, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := Assemble(tc.subtotal, tc.discount, tc.ship, tc.cod, "")
			if b.Total < 0 || b.Discount < 0 {
				t.Fatalf("negative component in %+v", b)
			}
		})
	}
}
