package csvfeed

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `id,name,price,status,updated_at
100,Camera,12800,SELLING,2024-01-01T00:00:00Z
101,Lens,9400,SOLD_OUT,2024-01-02T00:00:00Z
`

func TestParser_ReadsRows(t *testing.T) {
	p, err := NewParser(strings.NewReader(sampleFeed))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "price", "status", "updated_at"}, p.Headers())

	row, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, row.LineNumber)
	assert.Equal(t, "100", row.Values["id"])
	assert.Equal(t, "Camera", row.Values["name"])

	row, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, "101", row.Values["id"])

	_, err = p.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 2, p.RowsRead())
}

func TestParser_StripsBOM(t *testing.T) {
	p, err := NewParser(strings.NewReader("\xEF\xBB\xBF" + sampleFeed))
	require.NoError(t, err)
	assert.Equal(t, "id", p.Headers()[0])
}

func TestParser_EmptyFile(t *testing.T) {
	_, err := NewParser(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestParser_InvalidEncoding(t *testing.T) {
	_, err := NewParser(strings.NewReader("id,name\n\xff\xfe\xfd,broken\n"))
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestParser_RequireColumns(t *testing.T) {
	p, err := NewParser(strings.NewReader(sampleFeed))
	require.NoError(t, err)

	assert.NoError(t, p.RequireColumns([]string{"id", "status"}))

	err = p.RequireColumns([]string{"id", "quantity", "shipping_fee"})
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "quantity")
	assert.Contains(t, err.Error(), "shipping_fee")
}

func TestParser_ShortRowPadsEmpty(t *testing.T) {
	p, err := NewParser(strings.NewReader("id,name,price\n7,Short\n"))
	require.NoError(t, err)

	row, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "7", row.Values["id"])
	assert.Equal(t, "", row.Values["price"])
}

func TestParser_RowErrorDoesNotAbort(t *testing.T) {
	// A bare quote inside an unquoted field fails even with lazy quotes
	// when a quoted section is left unterminated.
	input := "id,name\n1,ok\n2,\"unterminated\n3,alsafe\n"
	p, err := NewParser(strings.NewReader(input))
	require.NoError(t, err)

	row, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "1", row.Values["id"])

	// Remaining rows either parse or surface as RowError; the parser itself
	// stays usable until EOF.
	for {
		_, err := p.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			var rowErr RowError
			require.ErrorAs(t, err, &rowErr)
		}
	}
}
