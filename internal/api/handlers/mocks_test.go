package handlers

import (
	"context"
	"time"

	"tradecore/internal/bot"
	"tradecore/internal/models"
)

// fakeStatus реализует StatusProvider и HistoryProvider для тестов
type fakeStatus struct {
	positions []models.Position
	portfolio *models.PortfolioState
	report    *bot.RiskReport
	trades    []*models.Trade
	events    []*models.RiskEvent
	err       error
}

func (f *fakeStatus) Positions() []models.Position {
	return f.positions
}

func (f *fakeStatus) Position(symbol string) (models.Position, bool) {
	for _, p := range f.positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return models.Position{}, false
}

func (f *fakeStatus) Portfolio() *models.PortfolioState {
	return f.portfolio
}

func (f *fakeStatus) RiskReport() *bot.RiskReport {
	return f.report
}

func (f *fakeStatus) RecentTrades(ctx context.Context, limit int) ([]*models.Trade, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.trades) {
		return f.trades[:limit], nil
	}
	return f.trades, nil
}

func (f *fakeStatus) AgentTrades(ctx context.Context, agentName string, limit int) ([]*models.Trade, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Trade
	for _, tr := range f.trades {
		if tr.AgentName == agentName {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (f *fakeStatus) RecentRiskEvents(ctx context.Context, limit int) ([]*models.RiskEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func spotPosition(symbol string) models.Position {
	return models.Position{
		Symbol:     symbol,
		Type:       models.PositionSpot,
		Direction:  models.DirectionLong,
		Size:       1,
		EntryPrice: 100,
		OpenTime:   time.Now(),
	}
}
