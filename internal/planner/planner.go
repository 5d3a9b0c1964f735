package planner

import (
	"github.com/shopspring/decimal"

	"github.com/polymirror/engine/internal/model"
	"github.com/polymirror/engine/internal/subs"
)

// Config holds planning parameters supplied by the configuration
// collaborator.
type Config struct {
	// DefaultMinSize is the exchange's minimum tradable unit for markets
	// without an explicit entry.
	DefaultMinSize decimal.Decimal

	// MarketMinSizes overrides the minimum per market/token id.
	MarketMinSizes map[string]decimal.Decimal
}

// Skip records an instruction that was planned but fell below the market's
// minimum tradable unit. Skips are persisted for statistics, never
// submitted.
type Skip struct {
	FollowerID string
	Size       decimal.Decimal // Computed size that was too small
	MinSize    decimal.Decimal // The floor it failed to clear
}

// Plan is the result of planning one admitted leader trade.
type Plan struct {
	Trade        model.LeaderTrade
	Instructions []model.ChildOrderInstruction
	Skipped      []Skip
}

// Planner derives scaled child order instructions per follower.
type Planner struct {
	cfg Config
}

// New creates a Planner.
func New(cfg Config) *Planner {
	return &Planner{cfg: cfg}
}

// MinSizeFor returns the minimum tradable unit for a market.
func (p *Planner) MinSizeFor(market string) decimal.Decimal {
	if min, ok := p.cfg.MarketMinSizes[market]; ok {
		return min
	}
	return p.cfg.DefaultMinSize
}

// Plan computes one instruction per active subscription of the trade's
// leader. Instruction order follows snapshot order; ordering only matters
// per follower, and one trade produces at most one instruction per
// follower.
func (p *Planner) Plan(trade model.LeaderTrade, snap *subs.Snapshot) Plan {
	out := Plan{Trade: trade}

	minSize := p.MinSizeFor(trade.Market)

	for _, sub := range snap.ForLeader(trade.LeaderID) {
		if !sub.Active {
			continue
		}

		size := trade.Size.Mul(sub.ScaleFactor)
		if sub.MaxSize.IsPositive() && size.GreaterThan(sub.MaxSize) {
			size = sub.MaxSize
		}

		if size.LessThanOrEqual(minSize) {
			out.Skipped = append(out.Skipped, Skip{
				FollowerID: sub.FollowerID,
				Size:       size,
				MinSize:    minSize,
			})
			continue
		}

		out.Instructions = append(out.Instructions, model.ChildOrderInstruction{
			FollowerID:     sub.FollowerID,
			LeaderID:       trade.LeaderID,
			Market:         trade.Market,
			Side:           trade.Side,
			Price:          trade.Price,
			Size:           size,
			IdempotencyKey: model.IdempotencyKey(trade.Fingerprint, sub.FollowerID),
			Fingerprint:    trade.Fingerprint,
			LeaderTradeTS:  trade.ExchangeTS,
		})
	}

	return out
}
