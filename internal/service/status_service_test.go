package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/bot"
	"tradecore/internal/config"
	"tradecore/internal/marketdata"
	"tradecore/internal/models"
	"tradecore/internal/reporting"
)

// ============================================================
// Фейки хранилищ
// ============================================================

type fakeTradeStore struct {
	trades []*models.Trade
	err    error
}

func (f *fakeTradeStore) GetRecent(ctx context.Context, limit int) ([]*models.Trade, error) {
	return f.trades, f.err
}

func (f *fakeTradeStore) GetByAgent(ctx context.Context, agentName string, limit int) ([]*models.Trade, error) {
	var out []*models.Trade
	for _, tr := range f.trades {
		if tr.AgentName == agentName {
			out = append(out, tr)
		}
	}
	return out, f.err
}

type fakeEventStore struct {
	events []*models.RiskEvent
	err    error
}

func (f *fakeEventStore) RecentRiskEvents(ctx context.Context, limit int) ([]*models.RiskEvent, error) {
	return f.events, f.err
}

type fakeResolver struct{}

func (fakeResolver) ResolvePrice(ctx context.Context, symbol string) (*marketdata.Resolution, error) {
	return &marketdata.Resolution{Symbol: symbol, Price: 100, Timestamp: time.Now()}, nil
}

func (fakeResolver) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	return 0.0001, nil
}

func newService(t *testing.T, trades TradeStore, events EventStore) (*StatusService, *bot.PositionBook) {
	t.Helper()
	cfg := config.Config{
		Risk: config.RiskConfig{
			InitialEquity:   100000,
			MaxPositionSize: 0.1,
			PositionLimit:   10,
			RiskPerTrade:    0.01,
			LeverageLimit:   10,
		},
	}
	logger := zap.NewNop()
	book := bot.NewPositionBook()
	risk := bot.NewRiskManager(cfg.Risk, nil, logger)
	executor := bot.NewTradeExecutor(cfg, book, risk, fakeResolver{}, reporting.NoopSink{}, logger)
	return NewStatusService(book, risk, executor, trades, events), book
}

// ============================================================
// Tests
// ============================================================

func TestPositionsSortedBySymbol(t *testing.T) {
	svc, book := newService(t, nil, nil)

	for _, symbol := range []string{"ETH/USDT", "BTC/USDT", "SOL/USDT"} {
		book.Open(&models.Position{
			Symbol:     symbol,
			Type:       models.PositionSpot,
			Direction:  models.DirectionLong,
			Size:       1,
			EntryPrice: 100,
			OpenTime:   time.Now(),
		})
	}

	positions := svc.Positions()
	if len(positions) != 3 {
		t.Fatalf("got %d positions, want 3", len(positions))
	}
	want := []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}
	for i, symbol := range want {
		if positions[i].Symbol != symbol {
			t.Errorf("positions[%d] = %s, want %s", i, positions[i].Symbol, symbol)
		}
	}
}

func TestPortfolioEmptyBook(t *testing.T) {
	svc, _ := newService(t, nil, nil)

	state := svc.Portfolio()
	if state.TotalEquity != 100000 {
		t.Errorf("equity = %v, want 100000", state.TotalEquity)
	}
	if !math.IsInf(state.MarginLevel, 1) {
		t.Errorf("margin level = %v, want +Inf", state.MarginLevel)
	}
	if state.OpenPositions != 0 {
		t.Errorf("open positions = %d, want 0", state.OpenPositions)
	}
}

func TestRecentTradesWithoutStore(t *testing.T) {
	svc, _ := newService(t, nil, nil)

	trades, err := svc.RecentTrades(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentTrades() error = %v", err)
	}
	if trades == nil || len(trades) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", trades)
	}
}

func TestRecentTradesPassThrough(t *testing.T) {
	store := &fakeTradeStore{trades: []*models.Trade{
		{Symbol: "BTC/USDT", AgentName: "alpha", Pnl: 100},
		{Symbol: "ETH/USDT", AgentName: "beta", Pnl: -50},
	}}
	svc, _ := newService(t, store, nil)

	trades, err := svc.RecentTrades(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentTrades() error = %v", err)
	}
	if len(trades) != 2 {
		t.Errorf("got %d trades, want 2", len(trades))
	}

	byAgent, err := svc.AgentTrades(context.Background(), "alpha", 10)
	if err != nil {
		t.Fatalf("AgentTrades() error = %v", err)
	}
	if len(byAgent) != 1 || byAgent[0].AgentName != "alpha" {
		t.Errorf("agent filter failed: %v", byAgent)
	}
}

func TestRecentTradesStoreError(t *testing.T) {
	storeErr := errors.New("connection lost")
	svc, _ := newService(t, &fakeTradeStore{err: storeErr}, nil)

	if _, err := svc.RecentTrades(context.Background(), 10); !errors.Is(err, storeErr) {
		t.Errorf("error = %v, want %v", err, storeErr)
	}
}

func TestRecentRiskEvents(t *testing.T) {
	events := &fakeEventStore{events: []*models.RiskEvent{
		{Type: models.RiskEventFunding, Severity: models.SeverityInfo, Symbol: "ETH/USDT"},
	}}
	svc, _ := newService(t, nil, events)

	got, err := svc.RecentRiskEvents(context.Background(), 50)
	if err != nil {
		t.Fatalf("RecentRiskEvents() error = %v", err)
	}
	if len(got) != 1 || got[0].Type != models.RiskEventFunding {
		t.Errorf("unexpected events: %v", got)
	}
}
