package domain

import "testing"

func TestPriceItemsComputesTotals(t *testing.T) {
	items := []OrderItem{
		{ProductID: "prd_1", Quantity: 1, Variation: VariationSnapshot{Price: 200.00}},
	}
	breakdown := PriceItems(items, DefaultTaxRate)
	if breakdown.Subtotal != 200.00 {
		t.Fatalf("expected subtotal 200.00, got %v", breakdown.Subtotal)
	}
	if breakdown.Tax != 10.00 {
		t.Fatalf("expected tax 10.00, got %v", breakdown.Tax)
	}
	if breakdown.Total != 210.00 {
		t.Fatalf("expected total 210.00, got %v", breakdown.Total)
	}
	if breakdown.AmountMinor != 21000 {
		t.Fatalf("expected amount 21000, got %d", breakdown.AmountMinor)
	}
}

func TestPriceItemsMultipleQuantities(t *testing.T) {
	items := []OrderItem{
		{ProductID: "prd_1", Quantity: 2, Variation: VariationSnapshot{Price: 50.00}},
		{ProductID: "prd_2", Quantity: 1, Variation: VariationSnapshot{Price: 100.00}},
	}
	breakdown := PriceItems(items, DefaultTaxRate)
	if breakdown.Subtotal != 200.00 {
		t.Fatalf("expected subtotal 200.00, got %v", breakdown.Subtotal)
	}
	if breakdown.Total != 210.00 {
		t.Fatalf("expected total 210.00, got %v", breakdown.Total)
	}
}

func TestMatchesAmountTolerance(t *testing.T) {
	breakdown := PricingBreakdown{AmountMinor: 21000}
	cases := []struct {
		declared int64
		want     bool
	}{
		{21000, true},
		{21001, true},
		{20999, true},
		{21002, false},
		{21500, false},
		{20000, false},
	}
	for _, tc := range cases {
		if got := breakdown.MatchesAmount(tc.declared); got != tc.want {
			t.Fatalf("MatchesAmount(%d) = %v, want %v", tc.declared, got, tc.want)
		}
	}
}

func TestPriceItemsRounding(t *testing.T) {
	items := []OrderItem{
		{ProductID: "prd_1", Quantity: 3, Variation: VariationSnapshot{Price: 33.33}},
	}
	breakdown := PriceItems(items, DefaultTaxRate)
	if breakdown.Subtotal != 99.99 {
		t.Fatalf("expected subtotal 99.99, got %v", breakdown.Subtotal)
	}
	if breakdown.Tax != 5.00 {
		t.Fatalf("expected tax 5.00, got %v", breakdown.Tax)
	}
	if breakdown.Total != 104.99 {
		t.Fatalf("expected total 104.99, got %v", breakdown.Total)
	}
	if breakdown.AmountMinor != 10499 {
		t.Fatalf("expected amount 10499, got %d", breakdown.AmountMinor)
	}
}

func TestMinorMajorConversion(t *testing.T) {
	if got := MajorToMinor(210.00); got != 21000 {
		t.Fatalf("expected 21000, got %d", got)
	}
	if got := MinorToMajor(21000); got != 210.00 {
		t.Fatalf("expected 210.00, got %v", got)
	}
}
