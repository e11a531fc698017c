package cost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku": {
				Input: 0.80, Output: 4.00,
				BatchDiscount: 0.5, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		Firecrawl: FirecrawlRate{PlanMonthly: 19.0, CreditsIncluded: 3000},
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name       string
		model      string
		input      int
		output     int
		cacheWrite int
		cacheRead  int
		want       float64
	}{
		{
			name:  "haiku simple",
			model: "haiku",
			input: 1000000, output: 100000,
			want: 0.80 + 0.40, // 0.80 input + 0.40 output
		},
		{
			name:  "haiku with cache",
			model: "haiku",
			input: 500000, output: 50000,
			cacheWrite: 200000, cacheRead: 300000,
			// in: 0.5M/1M * 0.80 = 0.40
			// out: 0.05M/1M * 4.00 = 0.20
			// cw: 0.2M/1M * 0.80 * 1.25 = 0.20
			// cr: 0.3M/1M * 0.80 * 0.1 = 0.024
			want: 0.40 + 0.20 + 0.20 + 0.024,
		},
		{
			name:  "unknown model is free",
			model: "nonexistent",
			input: 1000000, output: 1000000,
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := calc.Claude(tt.model, tt.input, tt.output, tt.cacheWrite, tt.cacheRead)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestFirecrawlScrape(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.InDelta(t, 19.0/3000, calc.FirecrawlScrape(1), 1e-9)
	assert.InDelta(t, 5*19.0/3000, calc.FirecrawlScrape(5), 1e-9)

	zero := NewCalculator(Rates{})
	assert.Zero(t, zero.FirecrawlScrape(10))
}

func TestLoadRates(t *testing.T) {
	t.Parallel()

	t.Run("empty path yields defaults", func(t *testing.T) {
		t.Parallel()
		rates, err := LoadRates("")
		require.NoError(t, err)
		assert.Equal(t, DefaultRates(), rates)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "rates.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"firecrawl:\n  plan_monthly: 99.0\n  credits_included: 1000\n",
		), 0o644))

		rates, err := LoadRates(path)
		require.NoError(t, err)
		assert.Equal(t, 99.0, rates.Firecrawl.PlanMonthly)
		// Anthropic defaults survive a partial file.
		assert.NotEmpty(t, rates.Anthropic)
	})

	t.Run("missing file errors", func(t *testing.T) {
		t.Parallel()
		_, err := LoadRates("/nonexistent/rates.yaml")
		assert.Error(t, err)
	})
}
