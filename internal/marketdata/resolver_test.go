package marketdata

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"tradecore/pkg/retry"
)

// fakeSource - управляемый источник для тестов резолвера
type fakeSource struct {
	name      string
	price     float64
	latency   time.Duration
	funding   float64
	liquidity float64

	err       error
	failFirst int32 // первые N вызовов GetPrice возвращают err
	calls     int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) GetPrice(ctx context.Context, symbol string) (*Quote, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.err != nil && (f.failFirst == 0 || n <= f.failFirst) {
		return nil, f.err
	}
	return &Quote{
		Symbol:    symbol,
		Price:     f.price,
		Source:    f.name,
		Latency:   f.latency,
		Timestamp: time.Now(),
	}, nil
}

func (f *fakeSource) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	return f.funding, nil
}

func (f *fakeSource) GetOpenInterest(ctx context.Context, symbol string) (float64, error) {
	return 0, nil
}

func (f *fakeSource) GetLiquidity(ctx context.Context, symbol string) (float64, error) {
	return f.liquidity, nil
}

func (f *fakeSource) Close() error { return nil }

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Factor:      2.0,
	}
}

func newTestResolver(cfg ResolverConfig, sources ...PriceSource) *Resolver {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = fastRetry()
	}
	return NewResolver(sources, cfg, zap.NewNop())
}

func TestResolvePriceReturnsSingleSourcePrice(t *testing.T) {
	// Средневзвешенная - только опора для фильтра выбросов:
	// веса 1/0.1s=10 и 1/0.4s=2.5 -> (100*10 + 110*2.5) / 12.5 = 102.
	// Итоговая цена - цена одного выигравшего источника, не смесь.
	fast := &fakeSource{
		name: "fast", price: 100, latency: 100 * time.Millisecond,
		funding: 0.0001, liquidity: 1_000_000,
	}
	slow := &fakeSource{name: "slow", price: 110, latency: 400 * time.Millisecond}

	r := newTestResolver(ResolverConfig{}, fast, slow)
	res, err := r.ResolvePrice(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("ResolvePrice() error: %v", err)
	}

	if math.Abs(res.WeightedPrice-102) > 1e-9 {
		t.Errorf("weighted price = %v, want 102", res.WeightedPrice)
	}
	if res.Price != 100 {
		t.Errorf("price = %v, want 100 (winning source, never a blend)", res.Price)
	}
	if res.Source != "fast" {
		t.Errorf("source = %q, want fast", res.Source)
	}
	if len(res.Quotes) != 2 {
		t.Errorf("quotes = %d, want 2", len(res.Quotes))
	}
}

func TestResolvePriceExcludesOutlierSource(t *testing.T) {
	// Сошедшиеся источники дают 100 и 101, третий улетел на 150.
	// Итоговая цена обязана прийти от одного из сошедшихся.
	a := &fakeSource{
		name: "a", price: 100, latency: 100 * time.Millisecond,
		funding: 0.0001, liquidity: 1_000_000,
	}
	b := &fakeSource{
		name: "b", price: 101, latency: 120 * time.Millisecond,
		funding: 0.0001, liquidity: 800_000,
	}
	rogue := &fakeSource{
		name: "rogue", price: 150, latency: 800 * time.Millisecond,
		funding: 0.02,
	}

	r := newTestResolver(ResolverConfig{}, a, b, rogue)
	res, err := r.ResolvePrice(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("ResolvePrice() error: %v", err)
	}

	if !res.Deviation {
		t.Error("expected deviation flag with a diverging source")
	}
	if res.Price < 100 || res.Price > 101 {
		t.Errorf("price = %v, want within [100, 101]", res.Price)
	}
	if res.Source == "rogue" {
		t.Error("diverging source must not win the selection")
	}
}

func TestResolvePriceDeviationFlag(t *testing.T) {
	// Источники расходятся сильнее 5% - цена возвращается, но помечена
	a := &fakeSource{name: "a", price: 100, latency: 100 * time.Millisecond}
	b := &fakeSource{name: "b", price: 120, latency: 100 * time.Millisecond}

	var flagged string
	r := newTestResolver(ResolverConfig{}, a, b)
	r.SetOnDeviation(func(symbol string, maxDeviation float64) {
		flagged = symbol
	})

	res, err := r.ResolvePrice(context.Background(), "ETH/USDT")
	if err != nil {
		t.Fatalf("ResolvePrice() error: %v", err)
	}
	if !res.Deviation {
		t.Error("expected deviation flag for diverging sources")
	}
	if flagged != "ETH/USDT" {
		t.Errorf("deviation callback symbol = %q, want ETH/USDT", flagged)
	}

	// Близкие цены флаг не поднимают
	c := &fakeSource{name: "c", price: 100, latency: 100 * time.Millisecond}
	d := &fakeSource{name: "d", price: 101, latency: 100 * time.Millisecond}
	r2 := newTestResolver(ResolverConfig{}, c, d)
	res2, err := r2.ResolvePrice(context.Background(), "ETH/USDT")
	if err != nil {
		t.Fatalf("ResolvePrice() error: %v", err)
	}
	if res2.Deviation {
		t.Errorf("unexpected deviation flag, max deviation %v", res2.MaxDeviation)
	}
}

func TestResolvePriceFiltersImplausible(t *testing.T) {
	good := &fakeSource{name: "good", price: 50000, latency: 50 * time.Millisecond}
	zero := &fakeSource{name: "zero", price: 0, latency: 50 * time.Millisecond}
	absurd := &fakeSource{name: "absurd", price: 2e9, latency: 50 * time.Millisecond}

	r := newTestResolver(ResolverConfig{}, good, zero, absurd)
	res, err := r.ResolvePrice(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("ResolvePrice() error: %v", err)
	}
	if len(res.Quotes) != 1 || res.Quotes[0].Source != "good" {
		t.Fatalf("expected only plausible quote, got %+v", res.Quotes)
	}
	if res.Price != 50000 {
		t.Errorf("price = %v, want 50000", res.Price)
	}
}

func TestResolvePriceAllSourcesFail(t *testing.T) {
	broken := &fakeSource{name: "broken", err: retry.Permanent(errors.New("down"))}
	r := newTestResolver(ResolverConfig{}, broken)

	_, err := r.ResolvePrice(context.Background(), "BTC/USDT")
	if !errors.Is(err, ErrNoPriceAvailable) {
		t.Errorf("error = %v, want ErrNoPriceAvailable", err)
	}
}

func TestResolvePriceRetriesTemporaryErrors(t *testing.T) {
	// Первые две попытки падают, третья успешна
	flaky := &fakeSource{
		name:      "flaky",
		price:     200,
		latency:   10 * time.Millisecond,
		err:       retry.Temporary(errors.New("transient")),
		failFirst: 2,
	}

	r := newTestResolver(ResolverConfig{}, flaky)
	res, err := r.ResolvePrice(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("ResolvePrice() error: %v", err)
	}
	if res.Price != 200 {
		t.Errorf("price = %v, want 200", res.Price)
	}
	if got := atomic.LoadInt32(&flaky.calls); got != 3 {
		t.Errorf("source calls = %d, want 3", got)
	}
}

func TestResolvePriceHonorsRetryAfter(t *testing.T) {
	rateLimited := &fakeSource{
		name:      "limited",
		price:     300,
		latency:   10 * time.Millisecond,
		err:       retry.RateLimited(errors.New("429"), 5*time.Millisecond),
		failFirst: 1,
	}

	r := newTestResolver(ResolverConfig{}, rateLimited)
	start := time.Now()
	res, err := r.ResolvePrice(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("ResolvePrice() error: %v", err)
	}
	if res.Price != 300 {
		t.Errorf("price = %v, want 300", res.Price)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("retry-after hint ignored: elapsed %v", elapsed)
	}
}

func TestQualityScoreComponents(t *testing.T) {
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"funding at zero rate", FundingScore(0), 40},
		{"funding at threshold", FundingScore(0.0001), 40},
		{"funding negative small", FundingScore(-0.0001), 40},
		{"funding at cutoff", FundingScore(0.01), 0},
		{"funding beyond cutoff", FundingScore(0.05), 0},
		{"liquidity zero", LiquidityScore(0), 0},
		{"liquidity half", LiquidityScore(500_000), 20},
		{"liquidity full", LiquidityScore(1_000_000), 40},
		{"liquidity above full", LiquidityScore(5_000_000), 40},
		{"latency instant", LatencyScore(0), 20},
		{"latency half second", LatencyScore(500 * time.Millisecond), 10},
		{"latency one second", LatencyScore(time.Second), 0},
		{"latency beyond", LatencyScore(3 * time.Second), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if math.Abs(tt.got-tt.want) > 1e-9 {
				t.Errorf("score = %v, want %v", tt.got, tt.want)
			}
		})
	}

	// Промежуточное значение funding: линейная интерполяция
	mid := FundingScore(0.005) // примерно посередине между 0.0001 и 0.01
	if mid <= 0 || mid >= 40 {
		t.Errorf("intermediate funding score = %v, want in (0, 40)", mid)
	}
}

func TestSelectSourcePrefersQualityPreferred(t *testing.T) {
	// Предпочитаемый источник с хорошим качеством выбирается,
	// даже если он медленнее
	preferred := &fakeSource{
		name: "preferred", price: 100,
		latency: 200 * time.Millisecond, funding: 0.0001, liquidity: 1_000_000,
	}
	fastest := &fakeSource{
		name: "fastest", price: 100,
		latency: 10 * time.Millisecond, funding: 0.0001, liquidity: 1_000_000,
	}

	r := newTestResolver(ResolverConfig{PreferredSource: "preferred"}, preferred, fastest)
	source, quality, err := r.SelectSource(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("SelectSource() error: %v", err)
	}
	if source.Name() != "preferred" {
		t.Errorf("selected %q, want preferred", source.Name())
	}
	if quality.Total < minPreferredScore {
		t.Errorf("preferred quality %v below threshold", quality.Total)
	}
}

func TestSelectSourceFallsBackToFastest(t *testing.T) {
	// Качество предпочитаемого просело (нет ликвидности, дорогой funding,
	// большая latency, балл < 60) - берём самый быстрый валидный
	degraded := &fakeSource{
		name: "preferred", price: 100,
		latency: 900 * time.Millisecond, funding: 0.02, liquidity: 0,
	}
	fast := &fakeSource{
		name: "fast", price: 100,
		latency: 10 * time.Millisecond, funding: 0.0001, liquidity: 500_000,
	}
	slow := &fakeSource{
		name: "slow", price: 100,
		latency: 300 * time.Millisecond, funding: 0.0001, liquidity: 500_000,
	}

	r := newTestResolver(ResolverConfig{PreferredSource: "preferred"}, degraded, fast, slow)
	source, _, err := r.SelectSource(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("SelectSource() error: %v", err)
	}
	if source.Name() != "fast" {
		t.Errorf("selected %q, want fast", source.Name())
	}
}
