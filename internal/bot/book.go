package bot

import (
	"fmt"
	"sync"
	"time"

	"tradecore/internal/models"
	"tradecore/pkg/utils"
)

// PositionBook - учёт открытых позиций
//
// Инвариант: не больше одной открытой позиции на символ. Нарушение
// означает баг в исполнителе, поэтому Open паникует, а не возвращает
// ошибку - скрыть повреждение учёта хуже, чем упасть.
//
// Мутации выполняет единственный писатель (исполнитель и его
// мониторинг-цикл); RWMutex защищает конкурентных читателей
// (API, отчётность). Наружу позиции отдаются только копиями.
type PositionBook struct {
	mu        sync.RWMutex
	positions map[string]*models.Position
}

// NewPositionBook создаёт пустой учёт позиций
func NewPositionBook() *PositionBook {
	return &PositionBook{
		positions: make(map[string]*models.Position),
	}
}

// Open добавляет новую позицию
//
// Паникует при занятом символе или невалидной позиции.
func (b *PositionBook) Open(p *models.Position) {
	if err := p.Validate(); err != nil {
		panic(fmt.Sprintf("position book: opening invalid position: %v", err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.positions[p.Symbol]; exists {
		panic(fmt.Sprintf("position book: symbol %s already has an open position", p.Symbol))
	}

	cp := *p
	b.positions[p.Symbol] = &cp
	openPositions.Set(float64(len(b.positions)))
}

// Get возвращает копию позиции по символу
func (b *PositionBook) Get(symbol string) (models.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	return *p, true
}

// Has возвращает true, если по символу есть открытая позиция
func (b *PositionBook) Has(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.positions[symbol]
	return ok
}

// Update применяет мутацию к позиции под локом
//
// Возвращает ErrPositionNotFound, если позиции нет.
func (b *PositionBook) Update(symbol string, fn func(*models.Position)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[symbol]
	if !ok {
		return fmt.Errorf("%s: %w", symbol, ErrPositionNotFound)
	}
	fn(p)
	return nil
}

// Close атомарно удаляет позицию и возвращает неизменяемую запись сделки
//
// PNL сделки = ценовой PNL + накопленный RealizedPnl (funding).
func (b *PositionBook) Close(symbol string, exitPrice float64, reason models.CloseReason) (*models.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, ErrPositionNotFound)
	}

	pricePnl := utils.CalculatePNL(string(p.Direction), p.EntryPrice, exitPrice, p.Size)
	trade := &models.Trade{
		Symbol:      p.Symbol,
		Direction:   p.Direction,
		Size:        p.Size,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   exitPrice,
		StopLoss:    p.StopLoss,
		TakeProfit:  p.TakeProfit,
		AgentName:   p.AgentName,
		OpenTime:    p.OpenTime,
		CloseTime:   time.Now(),
		Pnl:         pricePnl + p.RealizedPnl,
		CloseReason: reason,
		Metadata:    p.Metadata,
	}

	delete(b.positions, symbol)
	openPositions.Set(float64(len(b.positions)))
	positionsClosed.WithLabelValues(symbol, string(reason)).Inc()

	return trade, nil
}

// Snapshot возвращает копии всех открытых позиций
//
// Мониторинг-цикл работает со снимком: обход не держит лок на время
// сетевых вызовов.
func (b *PositionBook) Snapshot() []models.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snapshot := make([]models.Position, 0, len(b.positions))
	for _, p := range b.positions {
		snapshot = append(snapshot, *p)
	}
	return snapshot
}

// Len возвращает количество открытых позиций
func (b *PositionBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

// UsedMargin возвращает суммарную использованную маржу
func (b *PositionBook) UsedMargin() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0.0
	for _, p := range b.positions {
		total += p.MarginUsed
	}
	return total
}

// UnrealizedPnl возвращает суммарный нереализованный PNL
func (b *PositionBook) UnrealizedPnl() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0.0
	for _, p := range b.positions {
		total += p.UnrealizedPnl
	}
	return total
}
