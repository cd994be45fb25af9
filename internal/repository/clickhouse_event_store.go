package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"PortfolioHistory/internal/domain/models"
	domrepo "PortfolioHistory/internal/domain/repository"
	"PortfolioHistory/pkg/calendar"
	pkgch "PortfolioHistory/pkg/clickhouse"
	applogger "PortfolioHistory/pkg/logger"

	"github.com/shopspring/decimal"
)

// CHEventStore implements EventStore over the ClickHouse ledger tables.
type CHEventStore struct {
	db *sql.DB
	l  *applogger.Logger
}

var _ domrepo.EventStore = (*CHEventStore)(nil)

func NewCHEventStore(ch *pkgch.Client, l *applogger.Logger) *CHEventStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHEventStore{db: ch.DB(), l: l}
}

func (s *CHEventStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHEventStore) FetchEvents(ctx context.Context, kind models.EventKind, f models.EventFilter) ([]models.Event, error) {
	start := time.Now()
	var (
		q    string
		args []any
		scan func(*sql.Rows) ([]models.Event, error)
	)
	switch kind {
	case models.KindTrade:
		where, a := eventWhere([]string{"symbol"}, f)
		q = fmt.Sprintf(`SELECT date, symbol, action, toString(shares), toString(price_per_share), account_type
			FROM %s %s ORDER BY date, symbol`, TableTrades, where)
		args, scan = a, scanTrades
	case models.KindDividend:
		where, a := eventWhere([]string{"symbol"}, f)
		q = fmt.Sprintf(`SELECT date, symbol, toString(amount), account_type
			FROM %s %s ORDER BY date, symbol`, TableDividends, where)
		args, scan = a, scanDividends
	case models.KindSplit:
		where, a := eventWhere([]string{"symbol"}, f)
		q = fmt.Sprintf(`SELECT date, symbol, toString(ratio)
			FROM %s %s ORDER BY date, symbol`, TableSplits, where)
		args, scan = a, scanSplits
	case models.KindAcquisitionTarget, models.KindAcquisitionAcquirer:
		where, a := eventWhere([]string{"target", "acquirer"}, f)
		q = fmt.Sprintf(`SELECT date, target, acquirer, toString(conversion_ratio)
			FROM %s %s ORDER BY date, target`, TableAcquisitions, where)
		args, scan = a, scanAcquisitions
	default:
		return nil, fmt.Errorf("%w: no table for kind %s", models.ErrInvalidEvent, kind)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse fetch_events query error",
			applogger.Stringer("kind", kind),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("fetch %s events: %w", kind, err)
	}
	defer rows.Close()

	out, err := scan(rows)
	if err != nil {
		s.l.Error("clickhouse fetch_events scan error",
			applogger.Stringer("kind", kind),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("scan %s events: %w", kind, err)
	}
	s.l.Debug("clickhouse fetch_events",
		applogger.Stringer("kind", kind),
		applogger.Int("rows", len(out)),
		applogger.Duration("took_ms", time.Since(start)),
	)
	return out, nil
}

// FetchEntityMetadata joins the entities table with the account types seen in
// trades. A symbol traded in more than one account type is Agnostic.
func (s *CHEventStore) FetchEntityMetadata(ctx context.Context, symbols []string) (map[string]models.EntityMeta, error) {
	out := make(map[string]models.EntityMeta, len(symbols))

	where, args := symbolWhere("symbol", symbols)
	q := fmt.Sprintf(`SELECT symbol, name, sector, asset_type, geography FROM %s FINAL %s`, TableEntities, where)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch entities: %w", err)
	}
	for rows.Next() {
		var m models.EntityMeta
		if err := rows.Scan(&m.Symbol, &m.Name, &m.Sector, &m.AssetType, &m.Geography); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out[m.Symbol] = m
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("entities rows: %w", err)
	}
	rows.Close()

	accWhere, accArgs := symbolWhere("symbol", symbols)
	if accWhere == "" {
		accWhere = "WHERE account_type != ''"
	} else {
		accWhere += " AND account_type != ''"
	}
	q = fmt.Sprintf(`SELECT symbol, arraySort(groupUniqArray(account_type)) FROM %s %s GROUP BY symbol`, TableTrades, accWhere)
	rows, err = s.db.QueryContext(ctx, q, accArgs...)
	if err != nil {
		return nil, fmt.Errorf("fetch account types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var symbol string
		var accounts []string
		if err := rows.Scan(&symbol, &accounts); err != nil {
			return nil, fmt.Errorf("scan account types: %w", err)
		}
		m := out[symbol]
		m.Symbol = symbol
		m.AccountType = ResolveAccountType(accounts)
		out[symbol] = m
	}
	return out, rows.Err()
}

// ResolveAccountType collapses the account types a symbol was traded in.
func ResolveAccountType(accounts []string) string {
	switch len(accounts) {
	case 0:
		return ""
	case 1:
		return accounts[0]
	default:
		return models.AccountTypeAgnostic
	}
}

// eventWhere renders the filter. With several symbol columns a row matches
// when any of them is in the set.
func eventWhere(symbolCols []string, f models.EventFilter) (string, []any) {
	var conds []string
	var args []any
	if len(f.Symbols) > 0 {
		ors := make([]string, 0, len(symbolCols))
		for _, col := range symbolCols {
			ors = append(ors, fmt.Sprintf("%s IN (%s)", col, pkgch.Placeholders(len(f.Symbols))))
			for _, sym := range f.Symbols {
				args = append(args, sym)
			}
		}
		if len(ors) == 1 {
			conds = append(conds, ors[0])
		} else {
			conds = append(conds, "("+strings.Join(ors, " OR ")+")")
		}
	}
	if f.From != nil {
		conds = append(conds, "date >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		conds = append(conds, "date <= ?")
		args = append(args, *f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func symbolWhere(col string, symbols []string) (string, []any) {
	return eventWhere([]string{col}, models.EventFilter{Symbols: symbols})
}

func scanTrades(rows *sql.Rows) ([]models.Event, error) {
	var out []models.Event
	for rows.Next() {
		var (
			date                          time.Time
			symbol, action, shares, price string
			account                       string
		)
		if err := rows.Scan(&date, &symbol, &action, &shares, &price, &account); err != nil {
			return nil, err
		}
		sh, err := decimal.NewFromString(shares)
		if err != nil {
			return nil, fmt.Errorf("trade %s shares %q: %w", symbol, shares, err)
		}
		pr, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("trade %s price %q: %w", symbol, price, err)
		}
		out = append(out, models.Event{
			Date:   calendar.Day(date),
			Symbol: symbol,
			Kind:   models.KindTrade,
			Trade: models.Trade{
				Action:        models.Action(strings.ToLower(action)),
				Shares:        sh,
				PricePerShare: pr,
				AccountType:   account,
			},
		})
	}
	return out, rows.Err()
}

func scanDividends(rows *sql.Rows) ([]models.Event, error) {
	var out []models.Event
	for rows.Next() {
		var (
			date                     time.Time
			symbol, amount, account string
		)
		if err := rows.Scan(&date, &symbol, &amount, &account); err != nil {
			return nil, err
		}
		a, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("dividend %s amount %q: %w", symbol, amount, err)
		}
		out = append(out, models.NewDividend(calendar.Day(date), symbol, a, account))
	}
	return out, rows.Err()
}

func scanSplits(rows *sql.Rows) ([]models.Event, error) {
	var out []models.Event
	for rows.Next() {
		var (
			date          time.Time
			symbol, ratio string
		)
		if err := rows.Scan(&date, &symbol, &ratio); err != nil {
			return nil, err
		}
		r, err := decimal.NewFromString(ratio)
		if err != nil {
			return nil, fmt.Errorf("split %s ratio %q: %w", symbol, ratio, err)
		}
		out = append(out, models.NewSplit(calendar.Day(date), symbol, r))
	}
	return out, rows.Err()
}

func scanAcquisitions(rows *sql.Rows) ([]models.Event, error) {
	var out []models.Event
	for rows.Next() {
		var (
			date                    time.Time
			target, acquirer, ratio string
		)
		if err := rows.Scan(&date, &target, &acquirer, &ratio); err != nil {
			return nil, err
		}
		r, err := decimal.NewFromString(ratio)
		if err != nil {
			return nil, fmt.Errorf("acquisition %s->%s ratio %q: %w", target, acquirer, ratio, err)
		}
		out = append(out, models.NewAcquisition(calendar.Day(date), target, acquirer, r)...)
	}
	return out, rows.Err()
}
