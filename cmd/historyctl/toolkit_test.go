package main

import (
	"testing"

	"PortfolioHistory/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDimensions(t *testing.T) {
	dims, err := parseDimensions("sector, asset,")
	require.NoError(t, err)
	assert.Equal(t, []models.Dimension{models.DimensionSector, models.DimensionAsset}, dims)
	assert.Equal(t, []string{"sector", "asset"}, dimensionNames(dims))

	dims, err = parseDimensions("")
	require.NoError(t, err)
	assert.Empty(t, dims)

	_, err = parseDimensions("planet")
	assert.ErrorIs(t, err, models.ErrUnknownDimension)
}

func TestNullFixed(t *testing.T) {
	assert.Equal(t, "-", nullFixed(decimal.NullDecimal{}))
	assert.Equal(t, "12.50", nullFixed(decimal.NewNullDecimal(decimal.RequireFromString("12.5"))))
}
