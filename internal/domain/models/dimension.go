package models

import "fmt"

// Dimension is a persisted history view.
type Dimension int

const (
	DimensionAsset Dimension = iota
	DimensionAssetHypothetical
	DimensionPortfolio
	DimensionSector
	DimensionAssetType
	DimensionAccountType
	DimensionGeography
)

// NumDimensions is the number of declared dimensions.
const NumDimensions = int(DimensionGeography) + 1

// HistoryKind selects the row shape a dimension persists.
type HistoryKind int

const (
	HistoryAsset HistoryKind = iota
	HistoryAggregate
)

// PortfolioKey is the single group of the portfolio dimension.
const PortfolioKey = "portfolio"

// Descriptor describes where and how a dimension is stored.
// KeyOf is nil for asset-kind dimensions.
type Descriptor struct {
	Name      string
	Table     string
	KeyColumn string
	Kind      HistoryKind
	KeyOf     func(EntityMeta) (string, bool)
}

var descriptors = [NumDimensions]Descriptor{
	DimensionAsset: {
		Name: "asset", Table: "assets_history", KeyColumn: "symbol", Kind: HistoryAsset,
	},
	DimensionAssetHypothetical: {
		Name: "asset_hypothetical", Table: "assets_hypothetical_history", KeyColumn: "symbol", Kind: HistoryAsset,
	},
	DimensionPortfolio: {
		Name: "portfolio", Table: "portfolio_history", KeyColumn: "scope", Kind: HistoryAggregate,
		KeyOf: func(EntityMeta) (string, bool) { return PortfolioKey, true },
	},
	DimensionSector: {
		Name: "sector", Table: "sectors_history", KeyColumn: "sector", Kind: HistoryAggregate,
		KeyOf: func(m EntityMeta) (string, bool) { return m.Sector, m.Sector != "" },
	},
	DimensionAssetType: {
		Name: "asset_type", Table: "asset_types_history", KeyColumn: "asset_type", Kind: HistoryAggregate,
		KeyOf: func(m EntityMeta) (string, bool) { return m.AssetType, m.AssetType != "" },
	},
	DimensionAccountType: {
		Name: "account_type", Table: "account_types_history", KeyColumn: "account_type", Kind: HistoryAggregate,
		KeyOf: func(m EntityMeta) (string, bool) {
			return m.AccountType, m.AccountType != "" && m.AccountType != AccountTypeAgnostic
		},
	},
	DimensionGeography: {
		Name: "geography", Table: "geography_history", KeyColumn: "geography", Kind: HistoryAggregate,
		KeyOf: func(m EntityMeta) (string, bool) { return m.Geography, m.Geography != "" },
	},
}

// AllDimensions lists every dimension in declaration order.
func AllDimensions() []Dimension {
	out := make([]Dimension, len(descriptors))
	for i := range descriptors {
		out[i] = Dimension(i)
	}
	return out
}

func (d Dimension) Valid() bool { return d >= 0 && int(d) < len(descriptors) }

// Descriptor returns the static storage description of d.
func (d Dimension) Descriptor() Descriptor {
	if !d.Valid() {
		return Descriptor{}
	}
	return descriptors[d]
}

func (d Dimension) String() string {
	if !d.Valid() {
		return fmt.Sprintf("dimension(%d)", int(d))
	}
	return descriptors[d].Name
}

// CacheTag groups every cached read of this dimension's history.
func (d Dimension) CacheTag() string { return "history:" + d.String() }

// ParseDimension resolves a dimension by name.
func ParseDimension(s string) (Dimension, error) {
	for i, desc := range descriptors {
		if desc.Name == s {
			return Dimension(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDimension, s)
}

func (d Dimension) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDimension, int(d))
	}
	return []byte(d.String()), nil
}

func (d *Dimension) UnmarshalText(b []byte) error {
	v, err := ParseDimension(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
