package domain

import "testing"

func TestToMinorUnitsRoundsInsteadOfTruncating(t *testing.T) {
	cases := []struct {
		amount float64
		want   int64
	}{
		{19.99, 1999},
		{0.29, 29},
		{1.005, 101},
		{599.999, 60000},
		{0, 0},
	}
	for _, tc := range cases {
		if got := ToMinorUnits(tc.amount); got != tc.want {
			t.Fatalf("ToMinorUnits(%v): expected %d, got %d", tc.amount, tc.want, got)
		}
	}
}

func TestFormatPrice(t *testing.T) {
	if got := FormatPrice(599.99, "gbp"); got != "£599.99" {
		t.Fatalf("expected £599.99, got %q", got)
	}
	if got := FormatPrice(0, ""); got != "£0.00" {
		t.Fatalf("expected £0.00, got %q", got)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	code, err := NormalizeCurrency(" GBP ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != "gbp" {
		t.Fatalf("expected gbp, got %s", code)
	}
	if _, err := NormalizeCurrency("pounds"); err == nil {
		t.Fatalf("expected error for invalid currency")
	}
}
