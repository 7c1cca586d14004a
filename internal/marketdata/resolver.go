package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradecore/pkg/retry"
	"tradecore/pkg/utils"
)

// Пороговые значения оценки качества источника.
//
// Шкала 0-100: funding до 40 баллов, ликвидность до 40, latency до 20.
const (
	fundingFullScoreRate = 0.0001 // |rate| <= 0.01% - полные 40 баллов
	fundingZeroScoreRate = 0.01   // |rate| >= 1% - 0 баллов, между - линейно
	liquidityFullScore   = 1_000_000
	latencyZeroScore     = time.Second // >= 1s - 0 баллов

	// Минимальный балл, при котором предпочитаемый источник
	// используется вместо самого быстрого
	minPreferredScore = 60.0

	// Порог расхождения источников относительно средневзвешенной цены
	deviationThreshold = 0.05
)

// FundingScore возвращает компонент оценки за ставку финансирования (0-40)
func FundingScore(rate float64) float64 {
	abs := utils.Abs(rate)
	if abs <= fundingFullScoreRate {
		return 40
	}
	if abs >= fundingZeroScoreRate {
		return 0
	}
	return 40 * (fundingZeroScoreRate - abs) / (fundingZeroScoreRate - fundingFullScoreRate)
}

// LiquidityScore возвращает компонент оценки за ликвидность (0-40)
func LiquidityScore(liquidity float64) float64 {
	if liquidity <= 0 {
		return 0
	}
	if liquidity >= liquidityFullScore {
		return 40
	}
	return 40 * liquidity / liquidityFullScore
}

// LatencyScore возвращает компонент оценки за время ответа (0-20)
func LatencyScore(latency time.Duration) float64 {
	if latency <= 0 {
		return 20
	}
	if latency >= latencyZeroScore {
		return 0
	}
	return 20 * (1 - float64(latency)/float64(latencyZeroScore))
}

// SourceQuality - оценка качества одного источника для символа
type SourceQuality struct {
	Source         string        `json:"source"`
	FundingScore   float64       `json:"funding_score"`
	LiquidityScore float64       `json:"liquidity_score"`
	LatencyScore   float64       `json:"latency_score"`
	Total          float64       `json:"total"`
	Latency        time.Duration `json:"latency"`
}

// Resolution - результат разрешения цены по всем источникам
type Resolution struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`  // цена выигравшего источника
	Source    string    `json:"source"` // имя выигравшего источника
	Timestamp time.Time `json:"timestamp"`

	// Средневзвешенная по времени ответа; служит опорой для
	// фильтра выбросов, не итоговой ценой
	WeightedPrice float64 `json:"weighted_price"`

	// Котировки, прошедшие фильтр правдоподобия
	Quotes []Quote `json:"quotes"`

	// Deviation = true, если хотя бы один источник отклонился от
	// средневзвешенной более чем на 5%. Цена всё равно возвращается:
	// решение о реакции принимает риск-менеджер, а не резолвер.
	Deviation    bool    `json:"deviation"`
	MaxDeviation float64 `json:"max_deviation"`
}

// ResolverConfig - настройки резолвера
type ResolverConfig struct {
	// Таймаут одного обращения к источнику
	CallTimeout time.Duration
	// Политика повторов для обращений к источникам
	Retry retry.Config
	// Имя предпочитаемого источника (пустое = нет предпочтения)
	PreferredSource string
}

// DefaultResolverConfig возвращает настройки по умолчанию
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		CallTimeout: 5 * time.Second,
		Retry:       retry.SourceConfig(),
	}
}

// Resolver агрегирует цены из нескольких источников
//
// На каждый запрос опрашивает все источники параллельно, отбрасывает
// неправдоподобные цены, отсеивает выбросы относительно
// средневзвешенной (вес обратен времени ответа) и выбирает одну
// выигравшую котировку по оценке качества источника.
type Resolver struct {
	sources []PriceSource
	config  ResolverConfig
	logger  *zap.Logger

	// Колбэк на расхождение источников (подключает риск-менеджер)
	onDeviation func(symbol string, maxDeviation float64)
}

// NewResolver создаёт резолвер цен
func NewResolver(sources []PriceSource, config ResolverConfig, logger *zap.Logger) *Resolver {
	if config.CallTimeout <= 0 {
		config.CallTimeout = 5 * time.Second
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.SourceConfig()
	}
	return &Resolver{
		sources: sources,
		config:  config,
		logger:  logger.Named("resolver"),
	}
}

// SetOnDeviation устанавливает колбэк для события расхождения источников
func (r *Resolver) SetOnDeviation(fn func(symbol string, maxDeviation float64)) {
	r.onDeviation = fn
}

// fetchQuote опрашивает один источник с повторами
func (r *Resolver) fetchQuote(ctx context.Context, source PriceSource, symbol string) (*Quote, error) {
	return retry.DoWithResult(ctx, func() (*Quote, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.config.CallTimeout)
		defer cancel()

		start := time.Now()
		quote, err := source.GetPrice(callCtx, symbol)
		sourceLatency.WithLabelValues(source.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			sourceErrors.WithLabelValues(source.Name()).Inc()
			return nil, err
		}
		if !Plausible(quote.Price) {
			// Неправдоподобная цена - дефект источника, повторять бессмысленно
			return nil, retry.Permanent(fmt.Errorf("%s: %w: %v", source.Name(), ErrImplausiblePrice, quote.Price))
		}
		return quote, nil
	}, r.config.Retry)
}

// ResolvePrice разрешает цену символа по всем источникам
//
// Возвращает ErrNoPriceAvailable, если ни один источник не дал
// валидной цены после всех повторов.
func (r *Resolver) ResolvePrice(ctx context.Context, symbol string) (*Resolution, error) {
	if len(r.sources) == 0 {
		return nil, ErrNoPriceAvailable
	}

	type result struct {
		quote *Quote
		err   error
	}

	results := make([]result, len(r.sources))
	var wg sync.WaitGroup
	for i, source := range r.sources {
		wg.Add(1)
		go func(i int, source PriceSource) {
			defer wg.Done()
			quote, err := r.fetchQuote(ctx, source, symbol)
			results[i] = result{quote: quote, err: err}
		}(i, source)
	}
	wg.Wait()

	quotes := make([]Quote, 0, len(results))
	for i, res := range results {
		if res.err != nil {
			r.logger.Warn("source failed",
				zap.String("source", r.sources[i].Name()),
				zap.String("symbol", symbol),
				zap.Error(res.err))
			continue
		}
		quotes = append(quotes, *res.quote)
	}

	if len(quotes) == 0 {
		resolveFailures.WithLabelValues(symbol).Inc()
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoPriceAvailable)
	}

	resolution := aggregate(symbol, quotes)

	if resolution.Deviation {
		priceDeviations.WithLabelValues(symbol).Inc()
		r.logger.Warn("price sources diverge",
			zap.String("symbol", symbol),
			zap.Float64("max_deviation", resolution.MaxDeviation),
			zap.Float64("weighted_price", resolution.WeightedPrice))
		if r.onDeviation != nil {
			r.onDeviation(symbol, resolution.MaxDeviation)
		}
	}

	winner := r.selectQuote(ctx, resolution)
	resolution.Price = winner.Price
	resolution.Source = winner.Source
	resolvedPrice.WithLabelValues(symbol).Set(resolution.Price)

	return resolution, nil
}

// aggregate считает средневзвешенную опору и проверяет расхождение
//
// Вес котировки обратно пропорционален времени ответа источника;
// нулевые latency (живой стрим) получают вес как за 1ms. Итоговую
// цену Resolution заполняет выбор выигравшей котировки.
func aggregate(symbol string, quotes []Quote) *Resolution {
	values := make([]float64, len(quotes))
	weights := make([]float64, len(quotes))
	for i, q := range quotes {
		latency := q.Latency
		if latency < time.Millisecond {
			latency = time.Millisecond
		}
		values[i] = q.Price
		weights[i] = 1 / latency.Seconds()
	}

	weighted := utils.CalculateWeightedAverage(values, weights)

	maxDeviation := 0.0
	for _, q := range quotes {
		deviation := utils.Abs(q.Price-weighted) / weighted
		if deviation > maxDeviation {
			maxDeviation = deviation
		}
	}

	return &Resolution{
		Symbol:        symbol,
		WeightedPrice: weighted,
		Timestamp:     time.Now(),
		Quotes:        quotes,
		Deviation:     maxDeviation > deviationThreshold,
		MaxDeviation:  maxDeviation,
	}
}

// selectQuote выбирает выигравшую котировку
//
// Котировки дальше порога от средневзвешенной исключаются как
// выбросы (если выбросами оказались все - возврат к полному списку).
// Из оставшихся побеждает предпочитаемый источник с оценкой >= 60,
// иначе лучший по оценке с баллом >= 60, иначе самый быстрый.
func (r *Resolver) selectQuote(ctx context.Context, res *Resolution) Quote {
	candidates := make([]Quote, 0, len(res.Quotes))
	for _, q := range res.Quotes {
		if utils.Abs(q.Price-res.WeightedPrice)/res.WeightedPrice <= deviationThreshold {
			candidates = append(candidates, q)
		}
	}
	if len(candidates) == 0 {
		candidates = res.Quotes
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	type scored struct {
		quote   Quote
		quality *SourceQuality
	}
	ranked := make([]scored, 0, len(candidates))
	for _, q := range candidates {
		ranked = append(ranked, scored{quote: q, quality: r.scoreQuote(ctx, q)})
	}

	if r.config.PreferredSource != "" {
		for _, c := range ranked {
			if c.quote.Source == r.config.PreferredSource && c.quality.Total >= minPreferredScore {
				return c.quote
			}
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].quality.Total > ranked[j].quality.Total
	})
	if ranked[0].quality.Total >= minPreferredScore {
		return ranked[0].quote
	}

	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].quote.Latency < ranked[j].quote.Latency
	})
	return ranked[0].quote
}

// ScoreSource оценивает качество источника для символа (0-100)
func (r *Resolver) ScoreSource(ctx context.Context, source PriceSource, symbol string) (*SourceQuality, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.config.CallTimeout)
	defer cancel()

	quote, err := source.GetPrice(callCtx, symbol)
	if err != nil {
		return nil, err
	}
	if !Plausible(quote.Price) {
		return nil, fmt.Errorf("%s: %w: %v", source.Name(), ErrImplausiblePrice, quote.Price)
	}

	return r.scoreQuote(ctx, *quote), nil
}

// scoreQuote оценивает источник по уже полученной котировке
//
// Funding и ликвидность - best effort: недоступность компонента
// обнуляет его вклад, но не дисквалифицирует источник.
func (r *Resolver) scoreQuote(ctx context.Context, quote Quote) *SourceQuality {
	fundingRate := 0.0
	liquidity := 0.0
	if source := r.sourceByName(quote.Source); source != nil {
		callCtx, cancel := context.WithTimeout(ctx, r.config.CallTimeout)
		defer cancel()
		if rate, err := source.GetFundingRate(callCtx, quote.Symbol); err == nil {
			fundingRate = rate
		}
		if liq, err := source.GetLiquidity(callCtx, quote.Symbol); err == nil {
			liquidity = liq
		}
	}

	quality := &SourceQuality{
		Source:         quote.Source,
		FundingScore:   FundingScore(fundingRate),
		LiquidityScore: LiquidityScore(liquidity),
		LatencyScore:   LatencyScore(quote.Latency),
		Latency:        quote.Latency,
	}
	quality.Total = quality.FundingScore + quality.LiquidityScore + quality.LatencyScore

	sourceQuality.WithLabelValues(quote.Source, quote.Symbol).Set(quality.Total)
	return quality
}

func (r *Resolver) sourceByName(name string) PriceSource {
	for _, source := range r.sources {
		if source.Name() == name {
			return source
		}
	}
	return nil
}

// SelectSource выбирает лучший источник для символа
//
// Предпочитаемый источник используется, пока его оценка >= 60;
// иначе берётся самый быстрый из валидных. Возвращает ошибку,
// только если ни один источник не прошёл оценку.
func (r *Resolver) SelectSource(ctx context.Context, symbol string) (PriceSource, *SourceQuality, error) {
	type scored struct {
		source  PriceSource
		quality *SourceQuality
	}

	candidates := make([]scored, 0, len(r.sources))
	for _, source := range r.sources {
		quality, err := r.ScoreSource(ctx, source, symbol)
		if err != nil {
			r.logger.Debug("source scoring failed",
				zap.String("source", source.Name()),
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		candidates = append(candidates, scored{source: source, quality: quality})
	}

	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", symbol, ErrNoPriceAvailable)
	}

	if r.config.PreferredSource != "" {
		for _, c := range candidates {
			if c.source.Name() == r.config.PreferredSource && c.quality.Total >= minPreferredScore {
				return c.source, c.quality, nil
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].quality.Latency < candidates[j].quality.Latency
	})
	return candidates[0].source, candidates[0].quality, nil
}

// GetFundingRate получает ставку финансирования у лучшего источника
func (r *Resolver) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	source, _, err := r.SelectSource(ctx, symbol)
	if err != nil {
		return 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.config.CallTimeout)
	defer cancel()
	return source.GetFundingRate(callCtx, symbol)
}

// Close закрывает все источники
func (r *Resolver) Close() error {
	var firstErr error
	for _, source := range r.sources {
		if err := source.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
