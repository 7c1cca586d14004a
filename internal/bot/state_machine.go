package bot

import "tradecore/internal/models"

// ValidTransitions определяет допустимые переходы жизненного цикла позиции
//
// NONE -> OPEN -> MONITORING -> CLOSING -> CLOSED -> NONE
// MONITORING -> MONITORING - обычный тик без событий
var ValidTransitions = map[string][]string{
	models.StateNone:       {models.StateOpen},
	models.StateOpen:       {models.StateMonitoring, models.StateClosing}, // Closing при мгновенном развороте
	models.StateMonitoring: {models.StateMonitoring, models.StateClosing},
	models.StateClosing:    {models.StateClosed},
	models.StateClosed:     {models.StateNone},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateInfo возвращает описание состояния
func StateInfo(s string) string {
	switch s {
	case models.StateNone:
		return "Позиции нет"
	case models.StateOpen:
		return "Позиция открыта"
	case models.StateMonitoring:
		return "Позиция под наблюдением"
	case models.StateClosing:
		return "Закрытие позиции..."
	case models.StateClosed:
		return "Позиция закрыта"
	default:
		return "Неизвестное состояние"
	}
}

// HasOpenPosition возвращает true, если в состоянии есть живая позиция
func HasOpenPosition(s string) bool {
	return s == models.StateOpen || s == models.StateMonitoring || s == models.StateClosing
}
