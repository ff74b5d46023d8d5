package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDestinationPrice(t *testing.T) {
	t.Run("Reference scenario", func(t *testing.T) {
		// 10000 * 0.00075 = 7.5; * 1.2 = 9.0; + 2 = 11.00
		price, err := DestinationPrice(dec("10000"), dec("0.00075"), dec("20"), dec("2"))
		require.NoError(t, err)
		assert.Equal(t, "11.00", price)
	})

	t.Run("Zero amount yields fee only", func(t *testing.T) {
		price, err := DestinationPrice(decimal.Zero, dec("0.0072"), dec("15"), dec("3.50"))
		require.NoError(t, err)
		assert.Equal(t, "3.50", price)
	})

	t.Run("Rounds half away from zero", func(t *testing.T) {
		// 1 * 1 * 1.005 = 1.005 -> 1.01
		price, err := DestinationPrice(dec("1"), dec("1"), dec("0.5"), decimal.Zero)
		require.NoError(t, err)
		assert.Equal(t, "1.01", price)
	})

	t.Run("Negative amount rejected", func(t *testing.T) {
		_, err := DestinationPrice(dec("-1"), dec("0.0072"), decimal.Zero, decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("Zero rate rejected", func(t *testing.T) {
		_, err := DestinationPrice(dec("100"), decimal.Zero, decimal.Zero, decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidRate)
	})

	t.Run("Negative rate rejected", func(t *testing.T) {
		_, err := DestinationPrice(dec("100"), dec("-0.5"), decimal.Zero, decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidRate)
	})

	t.Run("Negative markup rejected", func(t *testing.T) {
		_, err := DestinationPrice(dec("100"), dec("0.0072"), dec("-1"), decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidMarkup)
	})

	t.Run("Negative fee rejected", func(t *testing.T) {
		_, err := DestinationPrice(dec("100"), dec("0.0072"), decimal.Zero, dec("-2"))
		assert.ErrorIs(t, err, ErrInvalidFee)
	})
}

func TestDestinationPrice_Monotonicity(t *testing.T) {
	base := func() (string, error) {
		return DestinationPrice(dec("5000"), dec("0.0072"), dec("20"), dec("2"))
	}
	basePrice, err := base()
	require.NoError(t, err)

	t.Run("Non-decreasing in source amount", func(t *testing.T) {
		higher, err := DestinationPrice(dec("5001"), dec("0.0072"), dec("20"), dec("2"))
		require.NoError(t, err)
		assert.True(t, dec(higher).GreaterThanOrEqual(dec(basePrice)))
	})

	t.Run("Non-decreasing in markup", func(t *testing.T) {
		higher, err := DestinationPrice(dec("5000"), dec("0.0072"), dec("25"), dec("2"))
		require.NoError(t, err)
		assert.True(t, dec(higher).GreaterThanOrEqual(dec(basePrice)))
	})

	t.Run("Non-decreasing in fee", func(t *testing.T) {
		higher, err := DestinationPrice(dec("5000"), dec("0.0072"), dec("20"), dec("2.50"))
		require.NoError(t, err)
		assert.True(t, dec(higher).GreaterThanOrEqual(dec(basePrice)))
	})

	t.Run("Strictly increasing in rate for positive amount", func(t *testing.T) {
		higher, err := DestinationPrice(dec("5000"), dec("0.0073"), dec("20"), dec("2"))
		require.NoError(t, err)
		assert.True(t, dec(higher).GreaterThan(dec(basePrice)))
	})
}

func TestCostBreakdown(t *testing.T) {
	t.Run("Full breakdown", func(t *testing.T) {
		b := CostBreakdown(dec("10000"), dec("800"), dec("0.00075"), dec("20"), dec("2"))
		require.False(t, b.IsZero())
		assert.True(t, b.ItemDestination.Equal(dec("9")))
		assert.True(t, b.ShippingDestination.Equal(dec("0.6")))
		assert.True(t, b.HandlingDestination.Equal(dec("2")))
		assert.True(t, b.TotalDestination.Equal(dec("11.6")))
		assert.True(t, b.ItemSource.Equal(dec("10000")))
		assert.True(t, b.ShippingSource.Equal(dec("800")))
	})

	t.Run("Invalid input yields zero breakdown, no error", func(t *testing.T) {
		assert.True(t, CostBreakdown(dec("-1"), decimal.Zero, dec("0.0072"), decimal.Zero, decimal.Zero).IsZero())
		assert.True(t, CostBreakdown(dec("100"), decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero).IsZero())
		assert.True(t, CostBreakdown(dec("100"), dec("-5"), dec("0.0072"), decimal.Zero, decimal.Zero).IsZero())
	})
}

func TestParseAmount(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		d, err := ParseAmount("1234.56")
		require.NoError(t, err)
		assert.True(t, d.Equal(dec("1234.56")))
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := ParseAmount("12,80円")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}
