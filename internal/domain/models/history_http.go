package models

// Dates are YYYY-MM-DD; Keys, Symbols and Windows are comma separated.

type HistoryRequest struct {
	Dimension string `param:"dimension" validate:"required"`
	From      string `query:"from" json:"from"`
	To        string `query:"to" json:"to"`
	Keys      string `query:"keys" json:"keys"`
	Cadence   string `query:"cadence" json:"cadence" default:"daily" validate:"oneof=daily weekly monthly quarterly yearly"`
}

type StatsRequest struct {
	Dimension    string  `param:"dimension" validate:"required"`
	From         string  `query:"from" json:"from"`
	To           string  `query:"to" json:"to"`
	Keys         string  `query:"keys" json:"keys"`
	RiskFreeRate float64 `query:"risk_free_rate" json:"risk_free_rate" validate:"gte=0,lte=1"`
}

type MilestonesRequest struct {
	Dimension string `param:"dimension" validate:"required"`
	Key       string `query:"key" json:"key" validate:"required"`
	AsOf      string `query:"as_of" json:"as_of"`
	Windows   string `query:"windows" json:"windows"`
}

type StatusRequest struct {
	Dimension string `param:"dimension"`
}

type SyncRequest struct {
	Dimensions []string `json:"dimensions"`
	Overwrite  bool     `json:"overwrite"`
}

type RebuildRequest struct {
	Dimensions []string `json:"dimensions"`
	From       string   `json:"from"`
}

type PositionsRequest struct {
	Symbols       string `query:"symbols" json:"symbols"`
	IncludeClosed bool   `query:"include_closed" json:"include_closed"`
}
