// Package prices serves daily closes and current quotes from an EODHD style
// HTTP API, behind a token bucket, retries and a shared cache.
package prices

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"PortfolioHistory/internal/domain/models"
	domainrepo "PortfolioHistory/internal/domain/repository"
	"PortfolioHistory/internal/service/ratelimit"
	"PortfolioHistory/pkg/cache"
	"PortfolioHistory/pkg/calendar"
	pkghttp "PortfolioHistory/pkg/http"
	applogger "PortfolioHistory/pkg/logger"
	"PortfolioHistory/pkg/util"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	sourceName = "price provider"
	limiterKey = "prices"
	cacheTag   = "prices"
)

// Config configures Provider. Zero values take the defaults in New.
type Config struct {
	BaseURL           string
	APIKey            string
	Exchange          string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             float64
	Workers           int
	DailyTTL          time.Duration
	CurrentTTL        time.Duration
	Blacklist         []string
	Retry             util.RetryPolicy
}

// Provider implements domain PriceProvider.
type Provider struct {
	cfg       Config
	http      *pkghttp.Client
	limiter   *ratelimit.Limiter
	cache     cache.Service
	blacklist map[string]struct{}
	log       *applogger.Logger
}

var _ domainrepo.PriceProvider = (*Provider)(nil)

func New(cfg Config, c cache.Service, l *applogger.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://eodhd.com/api"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Exchange == "" {
		cfg.Exchange = "US"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst < 1 {
		cfg.Burst = cfg.RequestsPerSecond
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.DailyTTL <= 0 {
		cfg.DailyTTL = 12 * time.Hour
	}
	if cfg.CurrentTTL <= 0 {
		cfg.CurrentTTL = time.Hour
	}
	if cfg.Retry.Classify == nil {
		cfg.Retry.Classify = classify
	}
	if l == nil {
		l = applogger.Nop()
	}
	bl := make(map[string]struct{}, len(cfg.Blacklist))
	for _, s := range cfg.Blacklist {
		bl[strings.ToUpper(s)] = struct{}{}
	}
	return &Provider{
		cfg:       cfg,
		http:      pkghttp.NewClient(pkghttp.WithTimeout(cfg.Timeout)),
		limiter:   ratelimit.New(),
		cache:     c,
		blacklist: bl,
		log:       l.With(applogger.String("component", "prices")),
	}
}

type eodBar struct {
	Date  string          `json:"date"`
	Close decimal.Decimal `json:"close"`
}

// DailyCloses returns unadjusted daily closes in [from, to] per symbol.
// Blacklisted symbols are skipped. An unknown symbol yields an empty series.
func (p *Provider) DailyCloses(ctx context.Context, symbols []string, from, to time.Time) (map[string]models.PriceSeries, error) {
	from, to = calendar.Day(from), calendar.Day(to)
	out := make(map[string]models.PriceSeries, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, sym := range p.filter(symbols) {
		g.Go(func() error {
			key := cache.Key("prices:daily", sym, calendar.Format(from), calendar.Format(to))
			series, err := cache.Remember(gctx, p.cache, key, p.cfg.DailyTTL, []string{cacheTag},
				func(ctx context.Context) (models.PriceSeries, error) {
					return p.fetchDaily(ctx, sym, from, to)
				})
			if err != nil {
				return err
			}
			mu.Lock()
			out[sym] = series
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) fetchDaily(ctx context.Context, sym string, from, to time.Time) (models.PriceSeries, error) {
	var bars []eodBar
	err := p.get(ctx, "/eod/"+p.ticker(sym), url.Values{
		"from": {calendar.Format(from)},
		"to":   {calendar.Format(to)},
	}, &bars)
	if errors.Is(err, errNotFound) {
		p.log.Warn("no price history", applogger.String("symbol", sym))
		return models.PriceSeries{}, nil
	}
	if err != nil {
		return nil, err
	}

	series := make(models.PriceSeries, 0, len(bars))
	for _, b := range bars {
		d, err := calendar.Parse(b.Date)
		if err != nil {
			return nil, &models.SourceError{Source: sourceName, Err: fmt.Errorf("bar date %q for %s: %w", b.Date, sym, err)}
		}
		series = append(series, models.PricePoint{Date: d, Close: b.Close})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	return series, nil
}

type quote struct {
	Code  string          `json:"code"`
	Close json.RawMessage `json:"close"`
}

// CurrentPrices returns the latest quote per symbol. Symbols the API has no
// quote for are absent from the result.
func (p *Provider) CurrentPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, sym := range p.filter(symbols) {
		g.Go(func() error {
			key := cache.Key("prices:current", sym)
			px, err := cache.Remember(gctx, p.cache, key, p.cfg.CurrentTTL, []string{cacheTag},
				func(ctx context.Context) (decimal.NullDecimal, error) {
					return p.fetchCurrent(ctx, sym)
				})
			if err != nil {
				return err
			}
			if px.Valid {
				mu.Lock()
				out[sym] = px.Decimal
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) fetchCurrent(ctx context.Context, sym string) (decimal.NullDecimal, error) {
	var q quote
	err := p.get(ctx, "/real-time/"+p.ticker(sym), nil, &q)
	if errors.Is(err, errNotFound) {
		return decimal.NullDecimal{}, nil
	}
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return parseQuoteClose(q.Close), nil
}

// parseQuoteClose accepts a JSON number or numeric string; "NA" and null are absent.
func parseQuoteClose(raw json.RawMessage) decimal.NullDecimal {
	s := strings.Trim(string(bytes.TrimSpace(raw)), `"`)
	if s == "" || s == "null" || strings.EqualFold(s, "NA") {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

var errNotFound = errors.New("not found")

// get performs one rate limited, retried GET and decodes the JSON body into dest.
func (p *Provider) get(ctx context.Context, path string, query url.Values, dest interface{}) error {
	params := url.Values{
		"api_token": {p.cfg.APIKey},
		"fmt":       {"json"},
	}
	for k, v := range query {
		params[k] = v
	}

	return util.Retry(ctx, p.cfg.Retry, func(ctx context.Context) error {
		if err := p.limiter.Wait(ctx, limiterKey, p.cfg.Burst, p.cfg.RequestsPerSecond); err != nil {
			return err
		}
		err := p.http.GetJSON(ctx, p.cfg.BaseURL+path, params, dest)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var se *pkghttp.StatusError
		switch {
		case !errors.As(err, &se):
			return &models.SourceError{Source: sourceName, Err: err}
		case se.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%s %s: %w", sourceName, path, models.ErrRateLimited)
		case se.StatusCode == http.StatusNotFound:
			return errNotFound
		case se.Temporary():
			return &models.SourceError{Source: sourceName, Err: se}
		default:
			return fmt.Errorf("%s: %w", sourceName, se)
		}
	})
}

func classify(err error) util.Backoff {
	switch {
	case errors.Is(err, models.ErrRateLimited):
		return util.RetryLong
	case errors.Is(err, models.ErrSourceUnavailable):
		return util.RetryShort
	default:
		return util.NoRetry
	}
}

func (p *Provider) ticker(sym string) string {
	if strings.Contains(sym, ".") {
		return sym
	}
	return sym + "." + p.cfg.Exchange
}

// filter drops blacklisted symbols and duplicates, keeping input order.
func (p *Provider) filter(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, bad := p.blacklist[strings.ToUpper(s)]; bad {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
