package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValuationRow is one symbol's valuation on one trading day. ClosingPrice,
// Value and PercentReturn are null when unknown: a price gap, a fully exited
// position, or a zero cost basis.
type ValuationRow struct {
	Date          time.Time           `json:"date"`
	Symbol        string              `json:"symbol"`
	Quantity      decimal.Decimal     `json:"quantity"`
	CostBasis     decimal.Decimal     `json:"cost_basis"`
	ClosingPrice  decimal.NullDecimal `json:"closing_price"`
	Value         decimal.NullDecimal `json:"value"`
	PercentReturn decimal.NullDecimal `json:"percent_return"`
}

// AggregateRow is a dimension group's valuation on one trading day.
type AggregateRow struct {
	Date              time.Time           `json:"date"`
	DimensionValue    string              `json:"key"`
	SumValue          decimal.Decimal     `json:"sum_value"`
	SumCostBasis      decimal.Decimal     `json:"sum_cost_basis"`
	MeanPercentReturn decimal.NullDecimal `json:"mean_percent_return"`
}

// AccountTypeAgnostic marks a symbol held across several account types; it
// has no single account-type bucket.
const AccountTypeAgnostic = "Agnostic"

// EntityMeta is the time-invariant classification of a symbol.
type EntityMeta struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Sector      string `json:"sector"`
	AssetType   string `json:"asset_type"`
	Geography   string `json:"geography"`
	AccountType string `json:"account_type"`
}

// PositionSummary is the current state of one holding.
type PositionSummary struct {
	Symbol            string              `json:"symbol"`
	Quantity          decimal.Decimal     `json:"quantity"`
	CostBasis         decimal.Decimal     `json:"cost_basis"`
	TotalDividends    decimal.Decimal     `json:"total_dividends"`
	Transferred       decimal.Decimal     `json:"transferred"`
	Received          decimal.Decimal     `json:"received"`
	FirstPurchaseDate *time.Time          `json:"first_purchase_date,omitempty"`
	LastPurchaseDate  *time.Time          `json:"last_purchase_date,omitempty"`
	CurrentPrice      decimal.NullDecimal `json:"current_price"`
	CurrentValue      decimal.NullDecimal `json:"current_value"`
}
