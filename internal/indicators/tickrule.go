package indicators

import (
	"github.com/quantflux/confluence/internal/models"
)

// TickStats summarizes a tick-rule classification pass.
type TickStats struct {
	Total        int
	Classified   int // unknown trades resolved to buy or sell
	Unknown      int // trades still unknown after the pass
	UnknownShare float64
}

// unknownShareWarnLimit is the post-classification unknown share above which
// downstream CVD output is considered low confidence.
const unknownShareWarnLimit = 0.10

// ClassifyTickRule resolves unknown trade sides by the tick rule: walking in
// time order, a trade printing above the previous price is a buy, below is a
// sell, equal stays unknown. The first trade has no reference and stays
// unknown. Trades with a known side are untouched and their prices serve as
// references. The input is not modified.
func ClassifyTickRule(trades []models.Trade) ([]models.Trade, TickStats) {
	out := make([]models.Trade, len(trades))
	copy(out, trades)

	stats := TickStats{Total: len(out)}
	prevPrice := 0.0
	havePrev := false
	for i := range out {
		if out[i].Side == models.SideUnknown && havePrev {
			switch {
			case out[i].Price > prevPrice:
				out[i].Side = models.SideBuy
				stats.Classified++
			case out[i].Price < prevPrice:
				out[i].Side = models.SideSell
				stats.Classified++
			}
		}
		prevPrice = out[i].Price
		havePrev = true
	}
	for _, t := range out {
		if t.Side == models.SideUnknown {
			stats.Unknown++
		}
	}
	if stats.Total > 0 {
		stats.UnknownShare = float64(stats.Unknown) / float64(stats.Total)
	}
	return out, stats
}

// signedVolume returns the tick-rule signed size of a trade: positive for
// buys, negative for sells, zero for unknown. Unknown trades never count
// toward buy or sell tallies.
func signedVolume(t models.Trade) float64 {
	switch t.Side {
	case models.SideBuy:
		return t.Size
	case models.SideSell:
		return -t.Size
	default:
		return 0
	}
}
