package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// validator.go - валидация входных данных
//
// Сигналы приходят от внешних генераторов и считаются недоверенными:
// символ, цена и размер проверяются до попадания в ядро.

// Ошибки валидации
var (
	ErrInvalidSymbol = errors.New("invalid symbol format")
)

// symbolPattern: буквы/цифры с опциональным разделителем (-, _, /)
var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,15}([-_/][A-Z0-9]{2,15})?$`)

// ValidateSymbol проверяет формат торгового символа
//
// Допустимы BTCUSDT, BTC/USDT, BTC-USDT, BTC_USDT (регистр не важен).
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidSymbol)
	}
	if len(symbol) < 2 || len(symbol) > 30 {
		return fmt.Errorf("%w: length %d out of range [2, 30]", ErrInvalidSymbol, len(symbol))
	}
	if !symbolPattern.MatchString(strings.ToUpper(symbol)) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return nil
}

// IsValidSymbol возвращает true для корректного символа
func IsValidSymbol(symbol string) bool {
	return ValidateSymbol(symbol) == nil
}

// NormalizeSymbol приводит символ к каноническому виду (BTCUSDT)
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, sep := range []string{"-", "_", "/"} {
		s = strings.ReplaceAll(s, sep, "")
	}
	return s
}

// ValidatePrice проверяет, что цена положительна и конечна
func ValidatePrice(price float64) error {
	if !IsFinite(price) {
		return fmt.Errorf("price is not finite: %v", price)
	}
	if price <= 0 {
		return fmt.Errorf("price must be positive, got %v", price)
	}
	return nil
}

// ValidateSize проверяет размер позиции
func ValidateSize(size float64) error {
	if !IsFinite(size) {
		return fmt.Errorf("size is not finite: %v", size)
	}
	if size <= 0 {
		return fmt.Errorf("size must be positive, got %v", size)
	}
	return nil
}

// ValidateLeverage проверяет плечо (1..100)
func ValidateLeverage(leverage int) error {
	if leverage < 1 || leverage > 100 {
		return fmt.Errorf("leverage must be in [1, 100], got %d", leverage)
	}
	return nil
}

// ============================================================
// Накопитель ошибок валидации
// ============================================================

// ValidationError - ошибка валидации одного поля
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors - накопитель ошибок по нескольким полям
type ValidationErrors []ValidationError

// Add добавляет ошибку поля
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// AddError добавляет ошибку поля, игнорируя nil
func (v *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	v.Add(field, err.Error())
}

// HasErrors возвращает true при наличии хотя бы одной ошибки
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// Error реализует error
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(parts, "; ")
}
