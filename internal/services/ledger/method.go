package ledger

import "fmt"

// CostBasisMethod defines how a sale removes cost basis.
type CostBasisMethod int

const (
	// FIFO removes the cost of the oldest lots first.
	FIFO CostBasisMethod = iota
	// AverageCost removes cost in proportion to the shares sold.
	AverageCost
)

func (m CostBasisMethod) String() string {
	switch m {
	case FIFO:
		return "fifo"
	case AverageCost:
		return "average"
	default:
		return "unknown"
	}
}

// ParseCostBasisMethod parses a configuration value. Empty means FIFO.
func ParseCostBasisMethod(s string) (CostBasisMethod, error) {
	switch s {
	case "", "fifo":
		return FIFO, nil
	case "average":
		return AverageCost, nil
	default:
		return 0, fmt.Errorf("unknown cost basis method: %q", s)
	}
}
