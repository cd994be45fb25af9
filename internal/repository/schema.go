package repository

import (
	"fmt"

	"PortfolioHistory/internal/domain/models"
)

// Event-store tables. Ingestion owns their content; the service only reads.
const (
	TableTrades       = "trades"
	TableDividends    = "dividends"
	TableSplits       = "splits"
	TableAcquisitions = "acquisitions"
	TableEntities     = "entities"
)

const amountType = "Decimal(38, 10)"

// SchemaStatements returns the idempotent DDL for the event store and every
// dimension's history table.
func SchemaStatements() []string {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			date Date,
			symbol LowCardinality(String),
			action LowCardinality(String),
			shares %[2]s,
			price_per_share %[2]s,
			account_type LowCardinality(String)
		) ENGINE = MergeTree ORDER BY (symbol, date)`, TableTrades, amountType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			date Date,
			symbol LowCardinality(String),
			amount %[2]s,
			account_type LowCardinality(String)
		) ENGINE = MergeTree ORDER BY (symbol, date)`, TableDividends, amountType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			date Date,
			symbol LowCardinality(String),
			ratio %[2]s
		) ENGINE = MergeTree ORDER BY (symbol, date)`, TableSplits, amountType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			date Date,
			target LowCardinality(String),
			acquirer LowCardinality(String),
			conversion_ratio %[2]s
		) ENGINE = MergeTree ORDER BY (target, date)`, TableAcquisitions, amountType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol String,
			name String,
			sector LowCardinality(String),
			asset_type LowCardinality(String),
			geography LowCardinality(String),
			updated_at DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(updated_at) ORDER BY symbol`, TableEntities),
	}
	for _, dim := range models.AllDimensions() {
		stmts = append(stmts, HistoryTableDDL(dim))
	}
	return stmts
}

// HistoryTableDDL creates one dimension's history table. Rows are keyed by
// (date, key); a newer version replaces an older one at merge time and under FINAL.
func HistoryTableDDL(dim models.Dimension) string {
	desc := dim.Descriptor()
	if desc.Kind == models.HistoryAsset {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			date Date,
			%s LowCardinality(String),
			quantity %[3]s,
			cost_basis %[3]s,
			closing_price Nullable(%[3]s),
			value Nullable(%[3]s),
			percent_return Nullable(%[3]s),
			version UInt64
		) ENGINE = ReplacingMergeTree(version) ORDER BY (date, %[2]s)`, desc.Table, desc.KeyColumn, amountType)
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		date Date,
		%s LowCardinality(String),
		sum_value %[3]s,
		sum_cost_basis %[3]s,
		mean_percent_return Nullable(%[3]s),
		version UInt64
	) ENGINE = ReplacingMergeTree(version) ORDER BY (date, %[2]s)`, desc.Table, desc.KeyColumn, amountType)
}
