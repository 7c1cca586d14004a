package utils

import (
	"math"
	"sort"
)

// math.go - финансовые и статистические расчёты
//
// Все расчёты PNL и риск-метрик ядра проходят через эти функции,
// чтобы формулы не дублировались между executor, risk manager и тестами.

// CalculatePNL вычисляет нереализованный PNL позиции
//
// Для long: (current - entry) * quantity
// Для short: (entry - current) * quantity
//
// Параметры:
//   - side: "long" или "short"
//   - entryPrice: цена входа
//   - currentPrice: текущая цена
//   - quantity: размер позиции в базовой валюте
func CalculatePNL(side string, entryPrice, currentPrice, quantity float64) float64 {
	if side == "short" {
		return (entryPrice - currentPrice) * quantity
	}
	return (currentPrice - entryPrice) * quantity
}

// CalculateWeightedAverage вычисляет средневзвешенное значение
//
// Используется резолвером цен: цены источников взвешиваются
// обратно пропорционально времени ответа.
//
// Возвращает 0 если длины не совпадают или сумма весов равна 0.
func CalculateWeightedAverage(values, weights []float64) float64 {
	if len(values) != len(weights) || len(values) == 0 {
		return 0
	}

	var weightedSum, totalWeight float64
	for i, v := range values {
		weightedSum += v * weights[i]
		totalWeight += weights[i]
	}

	if totalWeight == 0 {
		return 0
	}

	return weightedSum / totalWeight
}

// Mean вычисляет среднее арифметическое
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev вычисляет стандартное отклонение (population)
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// Percentile вычисляет p-й перцентиль (0-100) методом ближайшего ранга
//
// Используется для VaR: Percentile(returns, 5) = VaR 95%.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	// Линейная интерполяция между соседними рангами
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Correlation вычисляет коэффициент корреляции Пирсона двух рядов
//
// Ряды должны быть одинаковой длины. Возвращает 0 при
// недостатке данных или нулевой дисперсии.
func Correlation(a, b []float64) float64 {
	n := len(a)
	if n != len(b) || n < 2 {
		return 0
	}

	meanA := Mean(a)
	meanB := Mean(b)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}

	if varA == 0 || varB == 0 {
		return 0
	}

	return cov / math.Sqrt(varA*varB)
}

// Returns вычисляет ряд относительных изменений (simple returns)
//
// returns[i] = (series[i+1] - series[i]) / series[i]
//
// Элементы с нулевым знаменателем пропускаются.
func Returns(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	out := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] == 0 {
			continue
		}
		out = append(out, (series[i]-series[i-1])/series[i-1])
	}
	return out
}

// IsFinite возвращает true для конечного числа (не NaN и не Inf)
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Abs возвращает абсолютное значение (без приведения типов math.Abs)
func Abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Min возвращает меньшее из двух значений
func Min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Max возвращает большее из двух значений
func Max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Clamp ограничивает значение диапазоном [min, max]
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
