package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"fundforge/internal/book"
	"fundforge/internal/data"
	"fundforge/internal/events"
	"fundforge/internal/indicator"
	"fundforge/internal/ledger"
	"fundforge/internal/matching"
	"fundforge/internal/replay"
	"fundforge/internal/subscription"
	"fundforge/internal/vendor"
	"fundforge/pkg/risk"
)

type Config struct {
	PolygonAPIKey string
	Symbol        string
	Vendor        string
	StartDate     string
	EndDate       string
	WarmUpDays    int
	InitialCash   float64
	RiskPolicy    string
}

func loadConfig() Config {
	return Config{
		PolygonAPIKey: os.Getenv("POLYGON_API_KEY"),
		Symbol:        envOr("FUNDFORGE_SYMBOL", "AAPL"),
		Vendor:        envOr("FUNDFORGE_VENDOR", "polygon"),
		StartDate:     envOr("FUNDFORGE_START", ""),
		EndDate:       envOr("FUNDFORGE_END", ""),
		WarmUpDays:    4,
		InitialCash:   100000,
		RiskPolicy:    os.Getenv("FUNDFORGE_RISK_POLICY"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	startFlag := flag.String("start", "", "backtest start date, RFC3339")
	endFlag := flag.String("end", "", "backtest end date, RFC3339")
	symbolFlag := flag.String("symbol", "", "symbol to backtest")
	flag.Parse()

	cfg := loadConfig()
	if *startFlag != "" {
		cfg.StartDate = *startFlag
	}
	if *endFlag != "" {
		cfg.EndDate = *endFlag
	}
	if *symbolFlag != "" {
		cfg.Symbol = *symbolFlag
	}

	start, err := time.Parse(time.RFC3339, cfg.StartDate)
	if err != nil {
		log.Fatalf("fundforge: invalid -start: %v", err)
	}
	end, err := time.Parse(time.RFC3339, cfg.EndDate)
	if err != nil {
		log.Fatalf("fundforge: invalid -end: %v", err)
	}

	policy := risk.DefaultPolicy()
	if cfg.RiskPolicy != "" {
		p, err := risk.LoadPolicy(cfg.RiskPolicy)
		if err != nil {
			log.Fatalf("fundforge: loading risk policy: %v", err)
		}
		policy = p
	}

	var adapter vendor.Adapter
	switch cfg.Vendor {
	case "alpaca":
		adapter = vendor.NewAlpacaAdapter(os.Getenv("ALPACA_API_KEY"), os.Getenv("ALPACA_API_SECRET"))
	default:
		adapter = vendor.NewPolygonAdapter(cfg.PolygonAPIKey)
	}

	sym := data.NewSymbol(cfg.Symbol, adapter.Name(), data.MarketEquity)

	cache := book.NewCache()
	l := ledger.New("backtest-"+uuid.NewString()[:8], "simulated", "USD", cfg.InitialCash, policy)
	matchEngine := matching.New(matching.Config{}, cache, l)
	subHandler := subscription.NewHandler(adapter)
	indHandler := indicator.NewHandler()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tickSize, err := adapter.TickSize(ctx, sym)
	if err != nil {
		log.Fatalf("fundforge: resolving tick size: %v", err)
	}

	requested := data.DataSubscription{Symbol: sym, Resolution: data.Minutes(1), BaseDataType: data.TypeCandle, MarketType: sym.MarketType}
	if err := subHandler.Subscribe(ctx, requested, 500, tickSize, start); err != nil {
		log.Fatalf("fundforge: subscribing %v: %v", requested, err)
	}

	sma := indicator.NewSimpleMovingAverage("sma20", requested, 20)
	indHandler.Add(sma, nil)

	sink := events.SinkFunc(func(e events.Event) {
		switch e.Kind {
		case events.KindWarmUpComplete:
			log.Printf("warm-up complete at %s", e.Time.Format(time.RFC3339))
		case events.KindTimeSlice:
			log.Printf("t=%s slice_len=%d", e.Time.Format(time.RFC3339), len(e.TimeSlice))
		case events.KindOrderUpdate:
			log.Printf("order %s -> %v: %s", e.OrderUpdate.OrderID, e.OrderUpdate.State, e.OrderUpdate.Reason)
		case events.KindPosition:
			log.Printf("position %s qty=%s avg=%s", e.Position.Position.Symbol, e.Position.Position.Quantity, e.Position.Position.AveragePrice)
		case events.KindShutdown:
			stats := l.Print()
			log.Printf("shutdown (%s): trades=%d win_rate=%.2f cumulative_pnl=%s", e.Reason, stats.TotalTrades, stats.WinRate, stats.CumulativePnL)
		}
	})

	engine := replay.New(replay.Config{
		Mode:           replay.Backtest,
		Start:          start,
		End:            end,
		WarmUpDuration: time.Duration(cfg.WarmUpDays) * 24 * time.Hour,
		BufferStep:     5 * time.Millisecond,
	}, adapter, subHandler, cache, matchEngine, indHandler, sink)

	if err := engine.Run(ctx); err != nil {
		log.Fatalf("fundforge: replay engine: %v", err)
	}
}
