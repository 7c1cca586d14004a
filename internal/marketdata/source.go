// Package marketdata предоставляет разрешение цен из нескольких источников.
package marketdata

import (
	"context"
	"errors"
	"time"
)

// Ошибки источников цен
var (
	// ErrNoPriceAvailable - ни один источник не вернул валидную цену
	ErrNoPriceAvailable = errors.New("no price available from any source")

	// ErrImplausiblePrice - цена вне допустимого диапазона (0, 1e9)
	ErrImplausiblePrice = errors.New("price outside plausible range")

	// ErrStaleQuote - кэшированная котировка устарела
	ErrStaleQuote = errors.New("cached quote is stale")
)

// Границы правдоподобия цены. Всё вне (0, 1e9) отбрасывается
// до какой-либо агрегации.
const (
	minPlausiblePrice = 0.0
	maxPlausiblePrice = 1e9
)

// Plausible проверяет, что цена лежит в допустимом диапазоне
func Plausible(price float64) bool {
	return price > minPlausiblePrice && price < maxPlausiblePrice
}

// Quote - котировка от одного источника
type Quote struct {
	Symbol    string        `json:"symbol"`
	Price     float64       `json:"price"`
	Source    string        `json:"source"`
	Latency   time.Duration `json:"latency"` // время ответа источника
	Timestamp time.Time     `json:"timestamp"`
}

// PriceSource - унифицированный интерфейс источника рыночных данных
//
// Реализации: HTTPSource (REST polling), WSSource (стриминг с кэшем).
// Все вызовы уважают контекст; сетевые таймауты задаёт вызывающий.
type PriceSource interface {
	// Name возвращает имя источника (для логирования и метрик)
	Name() string

	// GetPrice получает текущую цену символа
	GetPrice(ctx context.Context, symbol string) (*Quote, error)

	// GetFundingRate получает текущую ставку финансирования контракта
	GetFundingRate(ctx context.Context, symbol string) (float64, error)

	// GetOpenInterest получает открытый интерес по контракту
	GetOpenInterest(ctx context.Context, symbol string) (float64, error)

	// GetLiquidity возвращает оценку доступной ликвидности (глубина стакана в quote-валюте)
	GetLiquidity(ctx context.Context, symbol string) (float64, error)

	// Close закрывает соединения источника
	Close() error
}
