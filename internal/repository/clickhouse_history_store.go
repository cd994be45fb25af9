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

// CHHistoryStore implements HistoryStore with one ReplacingMergeTree table per
// dimension. Overwrites insert a newer version of each (date, key) row;
// plain writes skip keys that already exist.
type CHHistoryStore struct {
	db        *sql.DB
	l         *applogger.Logger
	chunkSize int
	now       func() time.Time
}

var _ domrepo.HistoryStore = (*CHHistoryStore)(nil)

func NewCHHistoryStore(ch *pkgch.Client, l *applogger.Logger, chunkSize int) *CHHistoryStore {
	if l == nil {
		l = applogger.Nop()
	}
	if chunkSize <= 0 {
		chunkSize = 5000
	}
	return &CHHistoryStore{db: ch.DB(), l: l, chunkSize: chunkSize, now: time.Now}
}

var (
	assetColumns     = []string{"quantity", "cost_basis", "closing_price", "value", "percent_return", "version"}
	aggregateColumns = []string{"sum_value", "sum_cost_basis", "mean_percent_return", "version"}
)

func (s *CHHistoryStore) WriteAssetHistory(ctx context.Context, dim models.Dimension, rows []models.ValuationRow, overwrite bool) error {
	desc := dim.Descriptor()
	if desc.Kind != models.HistoryAsset {
		return &models.WriteError{Dimension: dim, Err: fmt.Errorf("%s does not hold asset rows", dim)}
	}
	if !overwrite {
		existing, err := s.existingKeys(ctx, desc, span(rows, func(r models.ValuationRow) time.Time { return r.Date }))
		if err != nil {
			return &models.WriteError{Dimension: dim, Err: err}
		}
		rows = filterAbsent(rows, existing, func(r models.ValuationRow) rowKey { return rowKey{r.Date, r.Symbol} })
	}

	version := uint64(s.now().UnixNano())
	columns := append([]string{"date", desc.KeyColumn}, assetColumns...)
	return writeChunks(ctx, s, dim, desc.Table, columns, ChunkByDate(rows, s.chunkSize, func(r models.ValuationRow) time.Time { return r.Date }),
		func(r models.ValuationRow) []any {
			return []any{r.Date, r.Symbol, r.Quantity, r.CostBasis,
				nullable(r.ClosingPrice), nullable(r.Value), nullable(r.PercentReturn), version}
		})
}

func (s *CHHistoryStore) WriteAggregateHistory(ctx context.Context, dim models.Dimension, rows []models.AggregateRow, overwrite bool) error {
	desc := dim.Descriptor()
	if desc.Kind != models.HistoryAggregate {
		return &models.WriteError{Dimension: dim, Err: fmt.Errorf("%s does not hold aggregate rows", dim)}
	}
	if !overwrite {
		existing, err := s.existingKeys(ctx, desc, span(rows, func(r models.AggregateRow) time.Time { return r.Date }))
		if err != nil {
			return &models.WriteError{Dimension: dim, Err: err}
		}
		rows = filterAbsent(rows, existing, func(r models.AggregateRow) rowKey { return rowKey{r.Date, r.DimensionValue} })
	}

	version := uint64(s.now().UnixNano())
	columns := append([]string{"date", desc.KeyColumn}, aggregateColumns...)
	return writeChunks(ctx, s, dim, desc.Table, columns, ChunkByDate(rows, s.chunkSize, func(r models.AggregateRow) time.Time { return r.Date }),
		func(r models.AggregateRow) []any {
			return []any{r.Date, r.DimensionValue, r.SumValue, r.SumCostBasis, nullable(r.MeanPercentReturn), version}
		})
}

// writeChunks sends chunks in order and stops at the first failure, so the
// table only ever gains a date-contiguous prefix of the rows.
func writeChunks[T any](ctx context.Context, s *CHHistoryStore, dim models.Dimension, table string, columns []string, chunks [][]T, values func(T) []any) error {
	written := 0
	for i, chunk := range chunks {
		batch := make([][]any, len(chunk))
		for j, r := range chunk {
			batch[j] = values(r)
		}
		if err := pkgch.InsertBatch(ctx, s.db, table, columns, batch); err != nil {
			s.l.Error("clickhouse history write error",
				applogger.String("table", table),
				applogger.Int("chunk", i),
				applogger.Int("written", written),
				applogger.Error(err),
			)
			return &models.WriteError{Dimension: dim, Err: err}
		}
		written += len(chunk)
	}
	s.l.Debug("clickhouse history written",
		applogger.String("table", table),
		applogger.Int("rows", written),
		applogger.Int("chunks", len(chunks)),
	)
	return nil
}

func (s *CHHistoryStore) ReadLatestDate(ctx context.Context, dim models.Dimension) (*time.Time, error) {
	desc := dim.Descriptor()
	q := fmt.Sprintf("SELECT max(date), count() FROM %s", desc.Table)
	var latest time.Time
	var n uint64
	if err := s.db.QueryRowContext(ctx, q).Scan(&latest, &n); err != nil {
		return nil, fmt.Errorf("read latest %s date: %w", dim, err)
	}
	if n == 0 {
		return nil, nil
	}
	day := calendar.Day(latest)
	return &day, nil
}

func (s *CHHistoryStore) ReadAssetHistory(ctx context.Context, dim models.Dimension, q models.HistoryQuery) ([]models.ValuationRow, error) {
	desc := dim.Descriptor()
	if desc.Kind != models.HistoryAsset {
		return nil, fmt.Errorf("%s does not hold asset rows", dim)
	}
	where, args := historyWhere(desc.KeyColumn, q)
	stmt := fmt.Sprintf(`SELECT date, %[2]s, toString(quantity), toString(cost_basis),
			toString(closing_price), toString(value), toString(percent_return)
		FROM %[1]s FINAL %[3]s ORDER BY date, %[2]s`, desc.Table, desc.KeyColumn, where)
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s history: %w", dim, err)
	}
	defer rows.Close()

	var out []models.ValuationRow
	for rows.Next() {
		var (
			r                 models.ValuationRow
			qty, cost         string
			price, value, pct sql.NullString
		)
		if err := rows.Scan(&r.Date, &r.Symbol, &qty, &cost, &price, &value, &pct); err != nil {
			return nil, fmt.Errorf("scan %s history: %w", dim, err)
		}
		r.Date = calendar.Day(r.Date)
		var perr error
		r.Quantity, perr = decimal.NewFromString(qty)
		if perr == nil {
			r.CostBasis, perr = decimal.NewFromString(cost)
		}
		if perr == nil {
			r.ClosingPrice, perr = parseNull(price)
		}
		if perr == nil {
			r.Value, perr = parseNull(value)
		}
		if perr == nil {
			r.PercentReturn, perr = parseNull(pct)
		}
		if perr != nil {
			return nil, fmt.Errorf("decode %s history row: %w", dim, perr)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *CHHistoryStore) ReadAggregateHistory(ctx context.Context, dim models.Dimension, q models.HistoryQuery) ([]models.AggregateRow, error) {
	desc := dim.Descriptor()
	if desc.Kind != models.HistoryAggregate {
		return nil, fmt.Errorf("%s does not hold aggregate rows", dim)
	}
	where, args := historyWhere(desc.KeyColumn, q)
	stmt := fmt.Sprintf(`SELECT date, %[2]s, toString(sum_value), toString(sum_cost_basis), toString(mean_percent_return)
		FROM %[1]s FINAL %[3]s ORDER BY date, %[2]s`, desc.Table, desc.KeyColumn, where)
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s history: %w", dim, err)
	}
	defer rows.Close()

	var out []models.AggregateRow
	for rows.Next() {
		var (
			r           models.AggregateRow
			value, cost string
			mean        sql.NullString
		)
		if err := rows.Scan(&r.Date, &r.DimensionValue, &value, &cost, &mean); err != nil {
			return nil, fmt.Errorf("scan %s history: %w", dim, err)
		}
		r.Date = calendar.Day(r.Date)
		var perr error
		r.SumValue, perr = decimal.NewFromString(value)
		if perr == nil {
			r.SumCostBasis, perr = decimal.NewFromString(cost)
		}
		if perr == nil {
			r.MeanPercentReturn, perr = parseNull(mean)
		}
		if perr != nil {
			return nil, fmt.Errorf("decode %s history row: %w", dim, perr)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowKey struct {
	date time.Time
	key  string
}

func (s *CHHistoryStore) existingKeys(ctx context.Context, desc models.Descriptor, w *calendar.Window) (map[rowKey]struct{}, error) {
	out := make(map[rowKey]struct{})
	if w == nil {
		return out, nil
	}
	q := fmt.Sprintf("SELECT DISTINCT date, %s FROM %s WHERE date >= ? AND date <= ?", desc.KeyColumn, desc.Table)
	rows, err := s.db.QueryContext(ctx, q, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("read existing keys: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k rowKey
		if err := rows.Scan(&k.date, &k.key); err != nil {
			return nil, fmt.Errorf("scan existing key: %w", err)
		}
		k.date = calendar.Day(k.date)
		out[k] = struct{}{}
	}
	return out, rows.Err()
}

func historyWhere(keyCol string, q models.HistoryQuery) (string, []any) {
	var conds []string
	var args []any
	if len(q.Keys) > 0 {
		conds = append(conds, fmt.Sprintf("%s IN (%s)", keyCol, pkgch.Placeholders(len(q.Keys))))
		for _, k := range q.Keys {
			args = append(args, k)
		}
	}
	if q.From != nil {
		conds = append(conds, "date >= ?")
		args = append(args, *q.From)
	}
	if q.To != nil {
		conds = append(conds, "date <= ?")
		args = append(args, *q.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// ChunkByDate splits date-ordered rows into chunks of at least size rows,
// cutting only between dates so no date straddles two chunks.
func ChunkByDate[T any](rows []T, size int, dateOf func(T) time.Time) [][]T {
	if len(rows) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]T{rows}
	}
	var out [][]T
	start := 0
	for i := 1; i < len(rows); i++ {
		if i-start >= size && !dateOf(rows[i]).Equal(dateOf(rows[i-1])) {
			out = append(out, rows[start:i])
			start = i
		}
	}
	return append(out, rows[start:])
}

func span[T any](rows []T, dateOf func(T) time.Time) *calendar.Window {
	if len(rows) == 0 {
		return nil
	}
	w := calendar.Window{From: dateOf(rows[0]), To: dateOf(rows[0])}
	for _, r := range rows[1:] {
		d := dateOf(r)
		if d.Before(w.From) {
			w.From = d
		}
		if d.After(w.To) {
			w.To = d
		}
	}
	return &w
}

func filterAbsent[T any](rows []T, existing map[rowKey]struct{}, keyOf func(T) rowKey) []T {
	if len(existing) == 0 {
		return rows
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if _, ok := existing[keyOf(r)]; !ok {
			out = append(out, r)
		}
	}
	return out
}

func nullable(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal
}

func parseNull(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
