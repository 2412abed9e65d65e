// Package shaper validates raw market snapshots and shapes them into the
// guaranteed-form views each indicator consumes. Rejections are scoped to a
// single indicator: a failed view means that indicator is skipped, never the
// whole analysis.
package shaper

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quantflux/confluence/internal/models"
)

// Minimum candle counts per indicator family.
const (
	DefaultMinCandles   = 20
	StructureMinCandles = 50
)

// nanFillLimit is the NaN share above which a timeframe is dropped instead
// of repaired.
const nanFillLimit = 0.10

// Shaper normalizes snapshots into per-indicator views. It is stateless;
// one instance serves all symbols concurrently.
type Shaper struct {
	log zerolog.Logger
}

// New creates a shaper.
func New(log zerolog.Logger) *Shaper {
	return &Shaper{log: log.With().Str("component", "shaper").Logger()}
}

// minCandlesFor returns the per-indicator minimum frame length.
func minCandlesFor(kind Kind) int {
	if kind == KindPriceStructure {
		return StructureMinCandles
	}
	return DefaultMinCandles
}

// Standardize resolves every incoming interval label to a canonical tag and
// frame-checks the result. Collisions keep the first non-empty frame.
// Frames that fail the check for the given indicator are dropped.
func (s *Shaper) Standardize(snap *models.MarketSnapshot, kind Kind) map[models.Timeframe]*models.OHLCVFrame {
	out := make(map[models.Timeframe]*models.OHLCVFrame, len(models.Timeframes))
	minCandles := minCandlesFor(kind)

	// Deterministic iteration so collision handling is stable.
	labels := make([]string, 0, len(snap.OHLCV))
	for label := range snap.OHLCV {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		frame := snap.OHLCV[label]
		tag, err := models.ResolveInterval(label)
		if err != nil {
			s.log.Debug().
				Str("symbol", snap.Symbol).
				Str("label", label).
				Msg("Dropping OHLCV frame with unresolvable interval label")
			continue
		}
		if existing, ok := out[tag]; ok && existing.Len() > 0 {
			continue // first non-empty frame wins
		}
		checked, err := s.checkFrame(frame, minCandles)
		if err != nil {
			s.log.Debug().
				Str("symbol", snap.Symbol).
				Str("label", label).
				Str("tag", string(tag)).
				Err(err).
				Msg("Dropping OHLCV frame that failed validation")
			continue
		}
		out[tag] = checked
	}
	return out
}

// checkFrame validates one OHLCV frame: minimum length, strictly increasing
// timestamps, and NaN repair (forward-then-backward fill when the NaN share
// of a column is below the limit).
func (s *Shaper) checkFrame(frame *models.OHLCVFrame, minCandles int) (*models.OHLCVFrame, error) {
	if frame == nil || len(frame.Bars) == 0 {
		return nil, fmt.Errorf("frame is empty")
	}
	if len(frame.Bars) < minCandles {
		return nil, fmt.Errorf("frame has %d bars, need %d", len(frame.Bars), minCandles)
	}
	for i := 1; i < len(frame.Bars); i++ {
		if frame.Bars[i].Timestamp <= frame.Bars[i-1].Timestamp {
			return nil, fmt.Errorf("timestamps not strictly increasing at index %d", i)
		}
	}

	bars := make([]models.Bar, len(frame.Bars))
	copy(bars, frame.Bars)

	columns := []struct {
		name string
		get  func(*models.Bar) *float64
	}{
		{"open", func(b *models.Bar) *float64 { return &b.Open }},
		{"high", func(b *models.Bar) *float64 { return &b.High }},
		{"low", func(b *models.Bar) *float64 { return &b.Low }},
		{"close", func(b *models.Bar) *float64 { return &b.Close }},
		{"volume", func(b *models.Bar) *float64 { return &b.Volume }},
	}

	for _, col := range columns {
		nanCount := 0
		for i := range bars {
			if math.IsNaN(*col.get(&bars[i])) {
				nanCount++
			}
		}
		if nanCount == 0 {
			continue
		}
		if nanCount == len(bars) {
			return nil, fmt.Errorf("column %s is entirely NaN", col.name)
		}
		if float64(nanCount)/float64(len(bars)) >= nanFillLimit {
			return nil, fmt.Errorf("column %s has %d/%d NaN values", col.name, nanCount, len(bars))
		}
		fillColumn(bars, col.get)
	}

	return &models.OHLCVFrame{Bars: bars}, nil
}

// fillColumn applies a forward fill then a backward fill over one column.
func fillColumn(bars []models.Bar, get func(*models.Bar) *float64) {
	last := math.NaN()
	for i := range bars {
		v := get(&bars[i])
		if math.IsNaN(*v) {
			if !math.IsNaN(last) {
				*v = last
			}
		} else {
			last = *v
		}
	}
	next := math.NaN()
	for i := len(bars) - 1; i >= 0; i-- {
		v := get(&bars[i])
		if math.IsNaN(*v) {
			if !math.IsNaN(next) {
				*v = next
			}
		} else {
			next = *v
		}
	}
}

// deriveMissing fills absent required tags by copying from the nearest
// finer-grained available tag; base, having nothing finer, borrows the
// nearest coarser one. Tags that cannot be derived get an empty placeholder
// frame so downstream bounds checks stay safe.
func (s *Shaper) deriveMissing(frames map[models.Timeframe]*models.OHLCVFrame, required []models.Timeframe) {
	for _, tag := range required {
		if f, ok := frames[tag]; ok && f.Len() > 0 {
			continue
		}
		var fallbacks []models.Timeframe
		if tag == models.TimeframeBase {
			fallbacks = []models.Timeframe{models.TimeframeLTF, models.TimeframeMTF, models.TimeframeHTF}
		} else {
			fallbacks = tag.FinerThan()
		}
		derived := false
		for _, fb := range fallbacks {
			if f, ok := frames[fb]; ok && f.Len() > 0 {
				frames[tag] = f
				derived = true
				break
			}
		}
		if !derived {
			frames[tag] = &models.OHLCVFrame{}
		}
	}
}

// CleanOrderBook drops non-numeric or negative levels and stamps a missing
// book timestamp from the snapshot. Returns nil when the snapshot has no
// book at all.
func (s *Shaper) CleanOrderBook(snap *models.MarketSnapshot) *models.OrderBook {
	book := snap.OrderBook
	if book == nil {
		return nil
	}
	clean := &models.OrderBook{Timestamp: book.Timestamp}
	if clean.Timestamp <= 0 {
		clean.Timestamp = snap.Timestamp
	}
	for _, lvl := range book.Bids {
		if validLevel(lvl) {
			clean.Bids = append(clean.Bids, lvl)
		}
	}
	for _, lvl := range book.Asks {
		if validLevel(lvl) {
			clean.Asks = append(clean.Asks, lvl)
		}
	}
	return clean
}

func validLevel(lvl models.BookLevel) bool {
	if math.IsNaN(lvl.Price) || math.IsInf(lvl.Price, 0) || lvl.Price < 0 {
		return false
	}
	if math.IsNaN(lvl.Size) || math.IsInf(lvl.Size, 0) || lvl.Size < 0 {
		return false
	}
	return true
}

// ProcessTrades repairs the trade tape: missing sides become unknown,
// missing prices are repaired from ticker last, then latest close, then the
// last valid processed price, or the trade is dropped; missing timestamps
// are stamped with snapshot time.
func (s *Shaper) ProcessTrades(snap *models.MarketSnapshot, frames map[models.Timeframe]*models.OHLCVFrame) []models.Trade {
	if len(snap.Trades) == 0 {
		return nil
	}

	fallbackPrice := 0.0
	if snap.Ticker != nil && snap.Ticker.Last > 0 {
		fallbackPrice = snap.Ticker.Last
	} else if f, ok := frames[models.TimeframeBase]; ok && f.Len() > 0 {
		fallbackPrice = f.LastClose()
	}

	out := make([]models.Trade, 0, len(snap.Trades))
	lastValid := 0.0
	dropped := 0
	for _, t := range snap.Trades {
		switch t.Side {
		case models.SideBuy, models.SideSell:
		default:
			t.Side = models.SideUnknown
		}
		if t.Price <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
			switch {
			case fallbackPrice > 0:
				t.Price = fallbackPrice
			case lastValid > 0:
				t.Price = lastValid
			default:
				dropped++
				continue
			}
		}
		if t.Size <= 0 || math.IsNaN(t.Size) || math.IsInf(t.Size, 0) {
			dropped++
			continue
		}
		if t.Timestamp <= 0 {
			t.Timestamp = snap.Timestamp
		}
		lastValid = t.Price
		out = append(out, t)
	}
	if dropped > 0 {
		s.log.Debug().
			Str("symbol", snap.Symbol).
			Int("dropped", dropped).
			Int("kept", len(out)).
			Msg("Dropped unrepairable trades")
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// computePressure builds the top-of-book pressure summary.
func computePressure(book *models.OrderBook) PressureSummary {
	var p PressureSummary
	if book == nil {
		return p
	}
	for _, lvl := range book.Bids {
		p.BidVolume += lvl.Size
	}
	for _, lvl := range book.Asks {
		p.AskVolume += lvl.Size
	}
	total := p.BidVolume + p.AskVolume
	if total > 0 {
		p.Imbalance = (p.BidVolume - p.AskVolume) / total
	}
	bid, okB := book.BestBid()
	ask, okA := book.BestAsk()
	if okB && okA && ask.Price > bid.Price {
		p.Spread = ask.Price - bid.Price
		mid := (ask.Price + bid.Price) / 2
		if mid > 0 {
			p.SpreadPct = p.Spread / mid * 100
		}
	}
	if okB && p.BidVolume > 0 {
		p.BidConcentration = bid.Size / p.BidVolume
	}
	if okA && p.AskVolume > 0 {
		p.AskConcentration = ask.Size / p.AskVolume
	}
	return p
}

// Technical shapes the technical indicator view.
func (s *Shaper) Technical(snap *models.MarketSnapshot) (*TechnicalView, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	frames := s.Standardize(snap, KindTechnical)
	if len(frames) == 0 {
		return nil, fmt.Errorf("technical view for %s: no valid OHLCV frames", snap.Symbol)
	}
	tags := make([]models.Timeframe, 0, len(frames))
	for _, tag := range models.Timeframes {
		if _, ok := frames[tag]; ok {
			tags = append(tags, tag)
		}
	}
	return &TechnicalView{OHLCV: frames, Ticker: snap.Ticker, Timeframes: tags}, nil
}

// Volume shapes the volume indicator view.
func (s *Shaper) Volume(snap *models.MarketSnapshot) (*VolumeView, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	frames := s.Standardize(snap, KindVolume)
	if len(frames) == 0 {
		return nil, fmt.Errorf("volume view for %s: no valid OHLCV frames", snap.Symbol)
	}
	return &VolumeView{
		OHLCV:           frames,
		ProcessedTrades: s.ProcessTrades(snap, frames),
		Ticker:          snap.Ticker,
	}, nil
}

// Orderbook shapes the orderbook indicator view. A snapshot without a book
// is a rejection; a thin book passes through and scores neutral downstream.
func (s *Shaper) Orderbook(snap *models.MarketSnapshot) (*OrderbookView, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	book := s.CleanOrderBook(snap)
	if book == nil {
		return nil, fmt.Errorf("orderbook view for %s: snapshot has no orderbook", snap.Symbol)
	}
	frames := s.Standardize(snap, KindOrderbook)
	return &OrderbookView{
		Book:      book,
		Trades:    s.ProcessTrades(snap, frames),
		Ticker:    snap.Ticker,
		LastPrice: snap.LastPrice(),
		Pressure:  computePressure(book),
	}, nil
}

// Orderflow shapes the orderflow indicator view. At least one of trades,
// book, or open interest must be present.
func (s *Shaper) Orderflow(snap *models.MarketSnapshot) (*OrderflowView, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	frames := s.Standardize(snap, KindOrderflow)
	s.deriveMissing(frames, []models.Timeframe{models.TimeframeBase})
	trades := s.ProcessTrades(snap, frames)
	if len(trades) == 0 && snap.OrderBook == nil && snap.OpenInterest == nil {
		return nil, fmt.Errorf("orderflow view for %s: no trades, book, or open interest", snap.Symbol)
	}
	return &OrderflowView{
		ProcessedTrades: trades,
		Book:            s.CleanOrderBook(snap),
		OHLCV:           frames,
		OpenInterest:    snap.OpenInterest,
	}, nil
}

// Sentiment shapes the sentiment indicator view. Either raw sentiment or a
// ticker must be present for derivation.
func (s *Shaper) Sentiment(snap *models.MarketSnapshot) (*SentimentView, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	if snap.Sentiment == nil && snap.Ticker == nil {
		return nil, fmt.Errorf("sentiment view for %s: no sentiment or ticker data", snap.Symbol)
	}
	return &SentimentView{
		Sentiment: snap.Sentiment,
		OHLCV:     s.Standardize(snap, KindSentiment),
		Ticker:    snap.Ticker,
	}, nil
}

// PriceStructure shapes the price-structure view. All four tags are
// required; missing ones are derived or left as empty placeholders so the
// indicator degrades to neutral rather than failing.
func (s *Shaper) PriceStructure(snap *models.MarketSnapshot) (*PriceStructureView, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	frames := s.Standardize(snap, KindPriceStructure)
	if len(frames) == 0 {
		return nil, fmt.Errorf("price structure view for %s: no valid OHLCV frames", snap.Symbol)
	}
	s.deriveMissing(frames, models.Timeframes)
	return &PriceStructureView{OHLCV: frames, Ticker: snap.Ticker}, nil
}
