package valuation

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestValue(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		leverage  int64
		initial   string
		current   string
		want      string
	}{
		{"ten_percent_gain_10x_doubles", "1000000000", 10, "100", "110", "2000000000"},
		{"ten_percent_loss_10x_busts", "1000000000", 10, "100", "90", "0"},
		{"unchanged_price_identity", "500000000", 20, "43210.5", "43210.5", "500000000"},
		{"no_leverage_tracks_price", "100000000", 1, "200", "250", "125000000"},
		{"loss_amplified", "100000000", 5, "1000", "950", "75000000"},
		{"deep_loss_clamped_at_zero", "100000000", 20, "1000", "100", "0"},
		{"gain_amplified", "500000000", 3, "80", "100", "875000000"},
		{"zero_principal_stays_zero", "0", 10, "100", "110", "0"},
		{"price_to_zero_busts", "1000000000", 1, "100", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Value(dec(tt.principal), tt.leverage, dec(tt.initial), dec(tt.current))
			if err != nil {
				t.Fatalf("Value: %v", err)
			}
			if !got.Equal(dec(tt.want)) {
				t.Errorf("Value = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValueRejectsBadInputs(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		leverage  int64
		initial   string
		current   string
	}{
		{"negative_principal", "-1", 10, "100", "110"},
		{"zero_leverage", "1000", 0, "100", "110"},
		{"negative_leverage", "1000", -3, "100", "110"},
		{"zero_initial_price", "1000", 10, "0", "110"},
		{"negative_initial_price", "1000", 10, "-5", "110"},
		{"negative_current_price", "1000", 10, "100", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Value(dec(tt.principal), tt.leverage, dec(tt.initial), dec(tt.current)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

// Value must never go negative no matter how hard the price falls.
func TestValueNonNegative(t *testing.T) {
	principal := dec("1000000000")
	initial := dec("50000")
	for _, lev := range []int64{1, 5, 10, 20} {
		price := initial
		for i := 0; i < 60; i++ {
			price = price.Mul(dec("0.93"))
			v, err := Value(principal, lev, initial, price)
			if err != nil {
				t.Fatalf("Value: %v", err)
			}
			if v.IsNegative() {
				t.Fatalf("leverage %d price %s: negative value %s", lev, price, v)
			}
		}
	}
}

// Higher current price never produces a lower value.
func TestValueMonotonicInCurrentPrice(t *testing.T) {
	principal := dec("500000000")
	initial := dec("1000")
	prev := decimal.Zero
	price := dec("100")
	for i := 0; i < 40; i++ {
		v, err := Value(principal, 7, initial, price)
		if err != nil {
			t.Fatalf("Value: %v", err)
		}
		if v.LessThan(prev) {
			t.Fatalf("value dropped from %s to %s as price rose to %s", prev, v, price)
		}
		prev = v
		price = price.Add(dec("100"))
	}
}

func TestBust(t *testing.T) {
	if ok, err := Bust(dec("1000000000"), 10, dec("100"), dec("90")); err != nil || !ok {
		t.Fatalf("Bust(10x, -10%%) = %v, %v; want true", ok, err)
	}
	if ok, err := Bust(dec("1000000000"), 10, dec("100"), dec("95")); err != nil || ok {
		t.Fatalf("Bust(10x, -5%%) = %v, %v; want false", ok, err)
	}
	// A zero-principal position is worthless but not busted.
	if ok, err := Bust(dec("0"), 10, dec("100"), dec("50")); err != nil || ok {
		t.Fatalf("Bust(zero principal) = %v, %v; want false", ok, err)
	}
}
