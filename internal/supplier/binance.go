package supplier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/models"
)

// ErrClosed is returned by Fetch after the supplier shut down.
var ErrClosed = errors.New("supplier closed")

// binanceRateLimit caps REST calls across all symbols; Binance allows 1200
// request weight per minute and a snapshot costs several calls.
const binanceRateLimit = rate.Limit(10)

// BinanceSupplier pulls snapshots from the Binance REST API: klines for
// each configured interval, the order book, the recent aggregated trade
// tape, and the 24h ticker.
type BinanceSupplier struct {
	client    *binance.Client
	intervals []string
	depth     int
	trades    int
	candles   int
	limiter   *rate.Limiter
	log       zerolog.Logger
}

// NewBinanceSupplier creates the supplier. Market data endpoints need no
// API key; credentials are accepted for the higher request weight they
// grant.
func NewBinanceSupplier(cfg config.SupplierConfig, tfs config.TimeframesConfig, apiKey, secretKey string, log zerolog.Logger) *BinanceSupplier {
	if cfg.Testnet {
		binance.UseTestnet = true
	}
	return &BinanceSupplier{
		client: binance.NewClient(apiKey, secretKey),
		intervals: []string{
			tfs.Base.Interval,
			tfs.LTF.Interval,
			tfs.MTF.Interval,
			tfs.HTF.Interval,
		},
		depth:   cfg.DepthLevels,
		trades:  cfg.TradeWindow,
		candles: cfg.CandleLimit,
		limiter: rate.NewLimiter(binanceRateLimit, 1),
		log:     log.With().Str("component", "binance_supplier").Logger(),
	}
}

// Fetch implements Supplier. OHLCV is mandatory; book, trades, and ticker
// failures degrade the snapshot instead of failing it.
func (s *BinanceSupplier) Fetch(ctx context.Context, symbol string) (*models.MarketSnapshot, error) {
	snap := &models.MarketSnapshot{
		Symbol:    symbol,
		Exchange:  "binance",
		Timestamp: time.Now().UnixMilli(),
		OHLCV:     make(map[string]*models.OHLCVFrame, len(s.intervals)),
	}

	for _, interval := range s.intervals {
		frame, err := s.fetchKlines(ctx, symbol, interval)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s klines for %s: %w", interval, symbol, err)
		}
		snap.OHLCV[interval] = frame
	}

	if book, err := s.fetchDepth(ctx, symbol); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Orderbook fetch failed, snapshot degrades")
	} else {
		snap.OrderBook = book
	}
	if trades, err := s.fetchTrades(ctx, symbol); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Trade tape fetch failed, snapshot degrades")
	} else {
		snap.Trades = trades
	}
	if ticker, err := s.fetchTicker(ctx, symbol); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Ticker fetch failed, snapshot degrades")
	} else {
		snap.Ticker = ticker
	}
	return snap, nil
}

func (s *BinanceSupplier) fetchKlines(ctx context.Context, symbol, interval string) (*models.OHLCVFrame, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	klines, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(s.candles).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	frame := &models.OHLCVFrame{Bars: make([]models.Bar, 0, len(klines))}
	for _, k := range klines {
		bar := models.Bar{
			Timestamp: k.OpenTime,
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
		}
		frame.Bars = append(frame.Bars, bar)
	}
	return frame, nil
}

func (s *BinanceSupplier) fetchDepth(ctx context.Context, symbol string) (*models.OrderBook, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	depth, err := s.client.NewDepthService().
		Symbol(symbol).
		Limit(s.depth).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	book := &models.OrderBook{Timestamp: time.Now().UnixMilli()}
	for _, b := range depth.Bids {
		book.Bids = append(book.Bids, models.BookLevel{
			Price: parseFloat(b.Price),
			Size:  parseFloat(b.Quantity),
		})
	}
	for _, a := range depth.Asks {
		book.Asks = append(book.Asks, models.BookLevel{
			Price: parseFloat(a.Price),
			Size:  parseFloat(a.Quantity),
		})
	}
	return book, nil
}

func (s *BinanceSupplier) fetchTrades(ctx context.Context, symbol string) ([]models.Trade, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	aggTrades, err := s.client.NewAggTradesService().
		Symbol(symbol).
		Limit(s.trades).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	trades := make([]models.Trade, 0, len(aggTrades))
	for _, t := range aggTrades {
		// The buyer being the maker means the aggressor sold.
		side := models.SideBuy
		if t.IsBuyerMaker {
			side = models.SideSell
		}
		trades = append(trades, models.Trade{
			ID:        strconv.FormatInt(t.AggTradeID, 10),
			Price:     parseFloat(t.Price),
			Size:      parseFloat(t.Quantity),
			Side:      side,
			Timestamp: t.Timestamp,
		})
	}
	return trades, nil
}

func (s *BinanceSupplier) fetchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	stats, err := s.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("no ticker data for symbol %s", symbol)
	}
	t := stats[0]
	pct := parseFloat(t.PriceChangePercent)
	return &models.Ticker{
		Last:       parseFloat(t.LastPrice),
		Bid:        parseFloat(t.BidPrice),
		Ask:        parseFloat(t.AskPrice),
		High:       parseFloat(t.HighPrice),
		Low:        parseFloat(t.LowPrice),
		Volume:     parseFloat(t.Volume),
		Percentage: &pct,
	}, nil
}

// Close implements Supplier.
func (s *BinanceSupplier) Close() error { return nil }

// parseFloat converts the API's string-encoded numbers; malformed values
// come back as 0 and are repaired or rejected by the shaper.
func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

var _ Supplier = (*BinanceSupplier)(nil)
