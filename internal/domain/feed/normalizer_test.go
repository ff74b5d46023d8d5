package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validRow returns a row that passes every filter; tests mutate single
// fields from here.
func validRow() map[string]string {
	return map[string]string{
		ColumnExternalID:   "100523119",
		ColumnName:         "Vintage Camera",
		ColumnDescription:  "Working condition, some wear.",
		ColumnQuantity:     "1",
		ColumnPrice:        "12800",
		ColumnShippingFee:  "800",
		ColumnCondition:    "used",
		ColumnStatus:       "SELLING",
		ColumnKeywords:     "camera, vintage, film",
		ColumnImageURL:     "https://img.example.co.jp/i/100523119_{size}.jpg",
		ColumnCategoryID:   "2084",
		ColumnCategoryName: "Cameras",
		ColumnOptions:      `{"color":"black"}`,
		ColumnUpdatedAt:    "2024-01-01T00:00:00Z",
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	t.Run("Valid row", func(t *testing.T) {
		n := NewNormalizer()
		rec, err := n.Normalize(validRow(), 2)
		require.NoError(t, err)
		require.NotNil(t, rec)

		assert.Equal(t, "100523119", rec.ExternalID)
		assert.Equal(t, "Vintage Camera", rec.Name)
		assert.Equal(t, 1, rec.Quantity)
		assert.Equal(t, "12800", rec.Price.String())
		assert.Equal(t, "800", rec.ShippingFee.String())
		assert.Equal(t, SaleStatusSelling, rec.SaleStatus)
		assert.Equal(t, []string{"camera", "vintage", "film"}, rec.Keywords)
		assert.Equal(t, []string{"https://img.example.co.jp/i/100523119_600.jpg"}, rec.ImageURLs)
		require.NotNil(t, rec.LastUpdated)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *rec.LastUpdated)
	})

	t.Run("Non-selling status dropped", func(t *testing.T) {
		for _, status := range []string{"SOLD_OUT", "SUSPENDED", "", "selling soon"} {
			row := validRow()
			row[ColumnStatus] = status
			n := NewNormalizer()
			rec, err := n.Normalize(row, 2)
			assert.Nil(t, rec, "status %q", status)
			assert.ErrorIs(t, err, ErrNotForSale)
		}
	})

	t.Run("Lowercase selling accepted", func(t *testing.T) {
		row := validRow()
		row[ColumnStatus] = "selling"
		rec, err := NewNormalizer().Normalize(row, 2)
		require.NoError(t, err)
		assert.Equal(t, SaleStatusSelling, rec.SaleStatus)
	})

	t.Run("Missing external ID dropped", func(t *testing.T) {
		row := validRow()
		row[ColumnExternalID] = "  "
		_, err := NewNormalizer().Normalize(row, 2)
		assert.ErrorIs(t, err, ErrMissingExternalID)
	})

	t.Run("Missing name dropped", func(t *testing.T) {
		row := validRow()
		row[ColumnName] = ""
		_, err := NewNormalizer().Normalize(row, 2)
		assert.ErrorIs(t, err, ErrMissingName)
	})

	t.Run("Negative price dropped", func(t *testing.T) {
		row := validRow()
		row[ColumnPrice] = "-100"
		_, err := NewNormalizer().Normalize(row, 2)
		assert.ErrorIs(t, err, ErrInvalidPrice)
	})

	t.Run("Malformed price dropped", func(t *testing.T) {
		row := validRow()
		row[ColumnPrice] = "12,800円"
		_, err := NewNormalizer().Normalize(row, 2)
		assert.ErrorIs(t, err, ErrInvalidPrice)
	})

	t.Run("Zero quantity accepted", func(t *testing.T) {
		row := validRow()
		row[ColumnQuantity] = "0"
		rec, err := NewNormalizer().Normalize(row, 2)
		require.NoError(t, err)
		assert.Equal(t, 0, rec.Quantity)
	})

	t.Run("Negative quantity dropped", func(t *testing.T) {
		row := validRow()
		row[ColumnQuantity] = "-3"
		_, err := NewNormalizer().Normalize(row, 2)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	})

	t.Run("Unparsable last-updated dropped", func(t *testing.T) {
		row := validRow()
		row[ColumnUpdatedAt] = "yesterday"
		_, err := NewNormalizer().Normalize(row, 2)
		assert.ErrorIs(t, err, ErrInvalidTimestamp)
	})

	t.Run("Missing last-updated dropped", func(t *testing.T) {
		row := validRow()
		row[ColumnUpdatedAt] = ""
		_, err := NewNormalizer().Normalize(row, 2)
		assert.ErrorIs(t, err, ErrInvalidTimestamp)
	})

	t.Run("Space-separated timestamp accepted", func(t *testing.T) {
		row := validRow()
		row[ColumnUpdatedAt] = "2024-03-05 09:30:00"
		rec, err := NewNormalizer().Normalize(row, 2)
		require.NoError(t, err)
		require.NotNil(t, rec.LastUpdated)
		assert.Equal(t, time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC), *rec.LastUpdated)
	})

	t.Run("Malformed shipping fee degrades to zero", func(t *testing.T) {
		row := validRow()
		row[ColumnShippingFee] = "free"
		rec, err := NewNormalizer().Normalize(row, 2)
		require.NoError(t, err)
		assert.True(t, rec.ShippingFee.IsZero())
	})
}

func TestNormalizer_CategoryAllowList(t *testing.T) {
	t.Run("Empty list admits every category", func(t *testing.T) {
		n := NewNormalizer()
		rec, err := n.Normalize(validRow(), 2)
		require.NoError(t, err)
		assert.Equal(t, "2084", rec.CategoryID)
	})

	t.Run("Listed category accepted", func(t *testing.T) {
		n := NewNormalizer(WithCategoryAllowList([]string{"2084", "3105"}))
		_, err := n.Normalize(validRow(), 2)
		require.NoError(t, err)
	})

	t.Run("Unlisted category dropped", func(t *testing.T) {
		n := NewNormalizer(WithCategoryAllowList([]string{"3105"}))
		_, err := n.Normalize(validRow(), 2)
		assert.ErrorIs(t, err, ErrCategoryExcluded)
	})
}

func TestNormalizer_Counters(t *testing.T) {
	n := NewNormalizer()

	good := validRow()
	bad := validRow()
	bad[ColumnStatus] = "SOLD_OUT"

	_, _ = n.Normalize(good, 2)
	_, _ = n.Normalize(bad, 3)
	_, _ = n.Normalize(good, 4)

	assert.Equal(t, 3, n.RowsSeen())
	assert.Equal(t, 2, n.RowsAccepted())
}

func TestExpandImageRefs(t *testing.T) {
	t.Run("Single URL", func(t *testing.T) {
		urls := ExpandImageRefs("https://img.example.co.jp/a.jpg", "600")
		assert.Equal(t, []string{"https://img.example.co.jp/a.jpg"}, urls)
	})

	t.Run("Comma list with placeholder", func(t *testing.T) {
		urls := ExpandImageRefs("https://x/1_{size}.jpg, https://x/2_{size}.jpg", "1200")
		assert.Equal(t, []string{"https://x/1_1200.jpg", "https://x/2_1200.jpg"}, urls)
	})

	t.Run("Empty input", func(t *testing.T) {
		assert.Nil(t, ExpandImageRefs("  ", "600"))
	})
}
