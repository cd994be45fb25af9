package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// lot is one block of shares with its total cost. Splits rescale Shares and
// leave Cost untouched, which is the same as dividing the per-share price.
type lot struct {
	Date   time.Time
	Shares decimal.Decimal
	Cost   decimal.Decimal
}

// lots is kept sorted by Date; lots sharing a date stay in insertion order.
type lots []lot

// insert places x after every lot dated on or before x.Date. The position is
// found by binary search; the result is a fresh slice because replay keeps
// earlier States, which would otherwise share l's backing array.
func (l lots) insert(x lot) lots {
	i := sort.Search(len(l), func(i int) bool { return l[i].Date.After(x.Date) })
	out := make(lots, 0, len(l)+1)
	out = append(out, l[:i]...)
	out = append(out, x)
	return append(out, l[i:]...)
}

// consume removes qty shares oldest-first and returns the remaining lots and
// the cost carried by the removed shares. A partially consumed lot gives up
// cost in proportion to the shares taken. qty must not exceed l.shares().
func (l lots) consume(qty decimal.Decimal) (lots, decimal.Decimal) {
	removed := decimal.Zero
	for i, cur := range l {
		if !qty.IsPositive() {
			return l[i:], removed
		}
		if cur.Shares.GreaterThan(qty) {
			portion := cur.Cost.Mul(qty).Div(cur.Shares)
			removed = removed.Add(portion)
			rest := append(lots{{Date: cur.Date, Shares: cur.Shares.Sub(qty), Cost: cur.Cost.Sub(portion)}}, l[i+1:]...)
			return rest, removed
		}
		removed = removed.Add(cur.Cost)
		qty = qty.Sub(cur.Shares)
	}
	return nil, removed
}

func (l lots) split(ratio decimal.Decimal) lots {
	out := make(lots, len(l))
	for i, cur := range l {
		out[i] = lot{Date: cur.Date, Shares: cur.Shares.Mul(ratio), Cost: cur.Cost}
	}
	return out
}

func (l lots) shares() decimal.Decimal {
	total := decimal.Zero
	for _, cur := range l {
		total = total.Add(cur.Shares)
	}
	return total
}

func (l lots) cost() decimal.Decimal {
	total := decimal.Zero
	for _, cur := range l {
		total = total.Add(cur.Cost)
	}
	return total
}
