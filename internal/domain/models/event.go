package models

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind identifies the ledger event variant. The numeric order is the
// same-day application order: corporate actions settle before trading, and
// an acquisition target is closed before its acquirer receives shares.
type EventKind int

const (
	KindSplit EventKind = iota
	KindTrade
	KindDividend
	KindAcquisitionTarget
	KindAcquisitionAcquirer
)

// Priority is the tie-break rank for events sharing a date.
func (k EventKind) Priority() int { return int(k) }

func (k EventKind) String() string {
	switch k {
	case KindSplit:
		return "split"
	case KindTrade:
		return "trade"
	case KindDividend:
		return "dividend"
	case KindAcquisitionTarget:
		return "acquisition_target"
	case KindAcquisitionAcquirer:
		return "acquisition_acquirer"
	default:
		return "unknown"
	}
}

// SourceKinds are the kinds that map to one event-store table each.
// Both acquisition sides come from the same table.
var SourceKinds = []EventKind{KindTrade, KindDividend, KindSplit, KindAcquisitionTarget}

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

type Trade struct {
	Action        Action
	Shares        decimal.Decimal
	PricePerShare decimal.Decimal
	AccountType   string
}

type Dividend struct {
	Amount      decimal.Decimal
	AccountType string
}

type Split struct {
	Ratio decimal.Decimal
}

type Acquisition struct {
	Target          string
	Acquirer        string
	ConversionRatio decimal.Decimal
}

// Event is one dated ledger entry. Only the payload matching Kind is set.
type Event struct {
	Date        time.Time
	Symbol      string
	Kind        EventKind
	Trade       Trade
	Dividend    Dividend
	Split       Split
	Acquisition Acquisition
}

func NewBuy(date time.Time, symbol string, shares, price decimal.Decimal, account string) Event {
	return Event{Date: date, Symbol: symbol, Kind: KindTrade, Trade: Trade{
		Action: ActionBuy, Shares: shares, PricePerShare: price, AccountType: account,
	}}
}

func NewSell(date time.Time, symbol string, shares, price decimal.Decimal, account string) Event {
	return Event{Date: date, Symbol: symbol, Kind: KindTrade, Trade: Trade{
		Action: ActionSell, Shares: shares, PricePerShare: price, AccountType: account,
	}}
}

func NewDividend(date time.Time, symbol string, amount decimal.Decimal, account string) Event {
	return Event{Date: date, Symbol: symbol, Kind: KindDividend, Dividend: Dividend{Amount: amount, AccountType: account}}
}

func NewSplit(date time.Time, symbol string, ratio decimal.Decimal) Event {
	return Event{Date: date, Symbol: symbol, Kind: KindSplit, Split: Split{Ratio: ratio}}
}

// NewAcquisition expands one acquisition record into its target and acquirer events.
func NewAcquisition(date time.Time, target, acquirer string, ratio decimal.Decimal) []Event {
	a := Acquisition{Target: target, Acquirer: acquirer, ConversionRatio: ratio}
	return []Event{
		{Date: date, Symbol: target, Kind: KindAcquisitionTarget, Acquisition: a},
		{Date: date, Symbol: acquirer, Kind: KindAcquisitionAcquirer, Acquisition: a},
	}
}

// CompareEvents orders by (Date, KindPriority, Symbol).
func CompareEvents(a, b Event) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Kind.Priority(), b.Kind.Priority()); c != 0 {
		return c
	}
	return strings.Compare(a.Symbol, b.Symbol)
}

// EventFilter narrows an event-store read. Empty Symbols means all symbols.
type EventFilter struct {
	Symbols []string
	From    *time.Time
	To      *time.Time
}

// MasterLog is the merged, chronologically ordered ledger for a symbol set.
// It is immutable: accessors hand out copies.
type MasterLog struct {
	events  []Event
	symbols []string
	from    *time.Time
	to      *time.Time
}

// NewMasterLog takes a copy of events and stable-sorts it by CompareEvents.
func NewMasterLog(events []Event, from, to *time.Time) *MasterLog {
	evs := slices.Clone(events)
	slices.SortStableFunc(evs, CompareEvents)

	seen := make(map[string]struct{})
	symbols := make([]string, 0)
	for _, e := range evs {
		if _, ok := seen[e.Symbol]; !ok {
			seen[e.Symbol] = struct{}{}
			symbols = append(symbols, e.Symbol)
		}
	}
	slices.Sort(symbols)
	return &MasterLog{events: evs, symbols: symbols, from: from, to: to}
}

func (m *MasterLog) Len() int { return len(m.events) }

func (m *MasterLog) Events() []Event { return slices.Clone(m.events) }

// Symbols lists the distinct symbols in the log, sorted.
func (m *MasterLog) Symbols() []string { return slices.Clone(m.symbols) }

// Range returns the date bounds the log was built for.
func (m *MasterLog) Range() (from, to *time.Time) { return m.from, m.to }

// BySymbol splits the log into per-symbol ledgers, each still in log order.
func (m *MasterLog) BySymbol() map[string][]Event {
	out := make(map[string][]Event, len(m.symbols))
	for _, e := range m.events {
		out[e.Symbol] = append(out[e.Symbol], e)
	}
	return out
}
