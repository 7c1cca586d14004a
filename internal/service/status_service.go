// Package service - прослойка между HTTP handlers и торговым ядром.
package service

import (
	"context"
	"sort"

	"tradecore/internal/bot"
	"tradecore/internal/models"
)

// TradeStore - доступ к истории сделок (реализует repository.TradeRepository)
type TradeStore interface {
	GetRecent(ctx context.Context, limit int) ([]*models.Trade, error)
	GetByAgent(ctx context.Context, agentName string, limit int) ([]*models.Trade, error)
}

// EventStore - доступ к журналу риск-событий (реализует repository.ReportRepository)
type EventStore interface {
	RecentRiskEvents(ctx context.Context, limit int) ([]*models.RiskEvent, error)
}

// StatusService отдаёт наружу состояние торгового ядра
//
// Живые данные (позиции, портфель, риск-метрики) берутся из ядра,
// история (сделки, события) - из хранилища. Хранилище опционально:
// без него исторические методы возвращают пустые списки.
type StatusService struct {
	book     *bot.PositionBook
	risk     *bot.RiskManager
	executor *bot.TradeExecutor
	trades   TradeStore
	events   EventStore
}

// NewStatusService создает новый StatusService
func NewStatusService(book *bot.PositionBook, risk *bot.RiskManager, executor *bot.TradeExecutor, trades TradeStore, events EventStore) *StatusService {
	return &StatusService{
		book:     book,
		risk:     risk,
		executor: executor,
		trades:   trades,
		events:   events,
	}
}

// Positions возвращает открытые позиции, отсортированные по символу
func (s *StatusService) Positions() []models.Position {
	positions := s.book.Snapshot()
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
	return positions
}

// Position возвращает позицию по символу
func (s *StatusService) Position(symbol string) (models.Position, bool) {
	return s.book.Get(symbol)
}

// Portfolio возвращает снимок состояния портфеля
func (s *StatusService) Portfolio() *models.PortfolioState {
	return s.executor.PortfolioState()
}

// RiskReport возвращает отчёт риск-менеджера
func (s *StatusService) RiskReport() *bot.RiskReport {
	return s.risk.Report()
}

// RecentTrades возвращает последние закрытые сделки
func (s *StatusService) RecentTrades(ctx context.Context, limit int) ([]*models.Trade, error) {
	if s.trades == nil {
		return []*models.Trade{}, nil
	}
	trades, err := s.trades.GetRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []*models.Trade{}
	}
	return trades, nil
}

// AgentTrades возвращает сделки конкретного агента
func (s *StatusService) AgentTrades(ctx context.Context, agentName string, limit int) ([]*models.Trade, error) {
	if s.trades == nil {
		return []*models.Trade{}, nil
	}
	trades, err := s.trades.GetByAgent(ctx, agentName, limit)
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []*models.Trade{}
	}
	return trades, nil
}

// RecentRiskEvents возвращает последние риск-события
func (s *StatusService) RecentRiskEvents(ctx context.Context, limit int) ([]*models.RiskEvent, error) {
	if s.events == nil {
		return []*models.RiskEvent{}, nil
	}
	events, err := s.events.RecentRiskEvents(ctx, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*models.RiskEvent{}
	}
	return events, nil
}
