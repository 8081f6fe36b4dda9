package rate

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var table = FiatTable{
	"USD": 1,
	"EUR": 0.92,
	"JPY": 151.3,
}

func TestRate_Examples(t *testing.T) {
	tests := []struct {
		name string
		from AssetRecord
		to   AssetRecord
		want float64
	}{
		{
			name: "usd to btc",
			from: Fiat("USD"),
			to:   Crypto("BTC", 65000),
			want: 1.0 / 65000,
		},
		{
			name: "eth to btc",
			from: Crypto("ETH", 3500),
			to:   Crypto("BTC", 65000),
			want: 3500.0 / 65000,
		},
		{
			name: "btc to eur",
			from: Crypto("BTC", 65000),
			to:   Fiat("EUR"),
			want: 65000 * 0.92,
		},
		{
			name: "eur to jpy",
			from: Fiat("EUR"),
			to:   Fiat("JPY"),
			want: 151.3 / 0.92,
		},
		{
			name: "eur to btc",
			from: Fiat("EUR"),
			to:   Crypto("BTC", 65000),
			want: 1 / (0.92 * 65000),
		},
		{
			name: "unknown fiat defaults to 1",
			from: Fiat("XXX"),
			to:   Fiat("USD"),
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Rate(tt.from, tt.to, table), tt.want*1e-12)
		})
	}
}

func TestRate_ReferenceValues(t *testing.T) {
	assert.InDelta(t, 0.0000153846, Rate(Fiat("USD"), Crypto("BTC", 65000), table), 1e-10)
	assert.InDelta(t, 0.05385, Rate(Crypto("ETH", 3500), Crypto("BTC", 65000), table), 1e-5)
}

func TestRate_InverseConsistency(t *testing.T) {
	assets := []AssetRecord{
		Fiat("USD"),
		Fiat("EUR"),
		Fiat("JPY"),
		Crypto("BTC", 65000),
		Crypto("ETH", 3500),
		Crypto("SHIB", 0.0000241),
	}

	for _, a := range assets {
		for _, b := range assets {
			ab := Rate(a, b, table)
			ba := Rate(b, a, table)
			if ab == 0 || ba == 0 {
				t.Errorf("%s/%s: unexpected zero rate (%v, %v)", a.ID, b.ID, ab, ba)
				continue
			}
			if product := ab * ba; math.Abs(product-1) > 1e-9 {
				t.Errorf("rate(%s,%s)*rate(%s,%s) = %v, want 1", a.ID, b.ID, b.ID, a.ID, product)
			}
		}
	}
}

func TestRate_UnusablePrices(t *testing.T) {
	btc := Crypto("BTC", 65000)

	tests := []struct {
		name  string
		from  AssetRecord
		to    AssetRecord
		table FiatTable
	}{
		{"zero from", Crypto("X", 0), btc, table},
		{"negative to", btc, Crypto("X", -1), table},
		{"nan from", Crypto("X", math.NaN()), btc, table},
		{"nan to", btc, Crypto("X", math.NaN()), table},
		{"inf from", Crypto("X", math.Inf(1)), btc, table},
		{"zero fiat multiplier", Fiat("ZERO"), btc, FiatTable{"ZERO": 0}},
		{"nan fiat multiplier", btc, Fiat("BAD"), FiatTable{"BAD": math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 0.0, Rate(tt.from, tt.to, tt.table))
		})
	}
}

func TestFiatTable_Multiplier(t *testing.T) {
	assert.Equal(t, 0.92, table.Multiplier("eur"))
	assert.Equal(t, 1.0, table.Multiplier("GBP"))
	assert.True(t, table.Has("jpy"))
	assert.False(t, table.Has("GBP"))
	assert.Equal(t, 1.0, DefaultFiatTable().Multiplier("USD"))
}

func TestInverseAndConvert(t *testing.T) {
	assert.Equal(t, 0.5, Inverse(2))
	assert.Equal(t, 0.0, Inverse(0))
	assert.Equal(t, 0.0, Inverse(math.NaN()))

	got := Convert(decimal.RequireFromString("2.5"), 4)
	assert.True(t, got.Equal(decimal.NewFromInt(10)), "Convert = %s", got)
	assert.True(t, Convert(decimal.NewFromInt(3), 0).IsZero())
}
