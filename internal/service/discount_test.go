package service

import "testing"

func TestTieredCartDiscountPercent(t *testing.T) {
	cases := []struct {
		qty  int
		want float64
	}{
		{0, 0},
		{1, 0},
		{2, 0},
		{3, 5},
		{4, 5},
		{5, 5},
		{6, 10},
		{7, 10},
		{100, 10},
	}
	for _, tc := range cases {
		if got := TieredCartDiscountPercent(tc.qty); got != tc.want {
			t.Fatalf("qty %d: expected %v%%, got %v%%", tc.qty, tc.want, got)
		}
	}
}

func TestTieredCartDiscountRounding(t *testing.T) {
	// 5% of 1250 is 62.5 cents; half rounds up.
	if got := TieredCartDiscount(3, 1250); got != 63 {
		t.Fatalf("expected 63, got %d", got)
	}
	if got := TieredCartDiscount(6, 25000); got != 2500 {
		t.Fatalf("expected 2500, got %d", got)
	}
	if got := TieredCartDiscount(2, 25000); got != 0 {
		t.Fatalf("expected no discount below the first tier, got %d", got)
	}
	if got := TieredCartDiscount(10, 0); got != 0 {
		t.Fatalf("expected zero discount on zero subtotal, got %d", got)
	}
}

func TestStaffPercentDiscount(t *testing.T) {
	if got := StaffPercentDiscount(10, 25000); got != 2500 {
		t.Fatalf("expected 2500, got %d", got)
	}
	if got := StaffPercentDiscount(0, 25000); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := StaffPercentDiscount(100, 9999); got != 9999 {
		t.Fatalf("expected full discount capped at subtotal, got %d", got)
	}
	// 7.5% of 999 is 74.925, rounds to 75.
	if got := StaffPercentDiscount(7.5, 999); got != 75 {
		t.Fatalf("expected 75, got %d", got)
	}
}
