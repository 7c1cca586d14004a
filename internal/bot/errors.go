package bot

import "errors"

// Ошибки риск-проверок и исполнения
//
// Отклонение сигнала - нормальный исход, а не исключение: вызывающий
// различает причины через errors.Is и решает, что делать дальше.
var (
	// ErrInvalidSignal - сигнал не прошёл валидацию
	ErrInvalidSignal = errors.New("invalid trade signal")

	// ErrInsufficientMargin - свободной маржи не хватает для открытия
	ErrInsufficientMargin = errors.New("insufficient free margin")

	// ErrPositionLimitReached - достигнут лимит открытых позиций
	ErrPositionLimitReached = errors.New("position limit reached")

	// ErrLeverageExceeded - запрошенное плечо выше допустимого
	ErrLeverageExceeded = errors.New("leverage exceeds maximum")

	// ErrContractNotAllowed - контрактная торговля не разрешена для символа
	ErrContractNotAllowed = errors.New("contract trading not allowed for symbol")

	// ErrMarginTypeNotAllowed - режим маржи не входит в разрешённые
	ErrMarginTypeNotAllowed = errors.New("margin type not allowed")

	// ErrCorrelationLimitExceeded - портфель перегружен коррелированными позициями
	ErrCorrelationLimitExceeded = errors.New("correlation limit exceeded")

	// ErrZeroPriceRisk - цена входа совпадает со стоп-лоссом, размер не определён
	ErrZeroPriceRisk = errors.New("entry price equals stop loss, position size undefined")

	// ErrDailyLossLimitReached - дневной лимит убытка исчерпан
	ErrDailyLossLimitReached = errors.New("daily loss limit reached")

	// ErrMaxDrawdownExceeded - просадка от пика equity выше допустимой
	ErrMaxDrawdownExceeded = errors.New("max drawdown exceeded")

	// ErrPositionNotFound - позиции по символу нет
	ErrPositionNotFound = errors.New("position not found")

	// ErrShuttingDown - ядро в процессе остановки, новые сигналы не принимаются
	ErrShuttingDown = errors.New("executor is shutting down")
)
