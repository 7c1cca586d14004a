package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"tradecore/pkg/ratelimit"
	"tradecore/pkg/retry"
)

// jsoniter в режиме совместимости со стандартной библиотекой:
// парсинг ответов источников - самая горячая точка мониторинг-цикла
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPSource - источник цен поверх REST API
//
// Каждый запрос проходит через token bucket лимитер: мониторинг-цикл
// опрашивает все позиции каждый тик, и без лимитера всплеск легко
// превышает лимиты API. Ответ 429 транслируется в RateLimitedError
// с подсказкой Retry-After для слоя повторов.
type HTTPSource struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
}

// HTTPSourceConfig - настройки REST источника
type HTTPSourceConfig struct {
	Name    string
	BaseURL string
	// Запросов в секунду и burst для лимитера (0 = дефолты лимитера)
	RateLimit float64
	Burst     float64
}

// NewHTTPSource создаёт REST источник цен
// Использует общий HTTP клиент с connection pooling
func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	return &HTTPSource{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		httpClient: GetGlobalHTTPClient(),
		limiter:    ratelimit.NewRateLimiter(cfg.RateLimit, cfg.Burst),
	}
}

func (s *HTTPSource) Name() string {
	return s.name
}

// doRequest выполняет GET запрос с учётом лимитера
func (s *HTTPSource) doRequest(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	reqURL := s.baseURL + endpoint
	if encoded := query.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		// Источник просит притормозить: отдаём подсказку слою повторов
		return nil, &retry.RateLimitedError{
			Err:        fmt.Errorf("%s: rate limited (429)", s.name),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%s: server error %d", s.name, resp.StatusCode)
	case resp.StatusCode >= 400:
		// Клиентские ошибки повторять бессмысленно
		return nil, retry.Permanent(fmt.Errorf("%s: request rejected %d: %s", s.name, resp.StatusCode, string(body)))
	}

	return body, nil
}

// parseRetryAfter разбирает заголовок Retry-After (секунды или HTTP-дата)
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// GetPrice получает текущую цену символа
func (s *HTTPSource) GetPrice(ctx context.Context, symbol string) (*Quote, error) {
	start := time.Now()

	body, err := s.doRequest(ctx, "/api/v1/ticker", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: decode ticker: %w", s.name, err)
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: parse price %q: %w", s.name, resp.Price, err)
	}
	if !Plausible(price) {
		return nil, fmt.Errorf("%s: %w: %v", s.name, ErrImplausiblePrice, price)
	}

	return &Quote{
		Symbol:    symbol,
		Price:     price,
		Source:    s.name,
		Latency:   time.Since(start),
		Timestamp: time.Now(),
	}, nil
}

// GetFundingRate получает текущую ставку финансирования
func (s *HTTPSource) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	body, err := s.doRequest(ctx, "/api/v1/funding", map[string]string{"symbol": symbol})
	if err != nil {
		return 0, err
	}

	var resp struct {
		FundingRate string `json:"funding_rate"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%s: decode funding: %w", s.name, err)
	}

	rate, err := strconv.ParseFloat(resp.FundingRate, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: parse funding rate %q: %w", s.name, resp.FundingRate, err)
	}
	return rate, nil
}

// GetOpenInterest получает открытый интерес по контракту
func (s *HTTPSource) GetOpenInterest(ctx context.Context, symbol string) (float64, error) {
	body, err := s.doRequest(ctx, "/api/v1/open-interest", map[string]string{"symbol": symbol})
	if err != nil {
		return 0, err
	}

	var resp struct {
		OpenInterest float64 `json:"open_interest"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%s: decode open interest: %w", s.name, err)
	}
	return resp.OpenInterest, nil
}

// GetLiquidity возвращает глубину стакана в quote-валюте
//
// Суммируются bid и ask уровни верхней части стакана; этого
// достаточно для оценки качества источника.
func (s *HTTPSource) GetLiquidity(ctx context.Context, symbol string) (float64, error) {
	body, err := s.doRequest(ctx, "/api/v1/depth", map[string]string{
		"symbol": symbol,
		"limit":  "20",
	})
	if err != nil {
		return 0, err
	}

	var resp struct {
		Bids [][2]string `json:"bids"` // [price, volume]
		Asks [][2]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%s: decode depth: %w", s.name, err)
	}

	total := 0.0
	for _, levels := range [][][2]string{resp.Bids, resp.Asks} {
		for _, lvl := range levels {
			price, err1 := strconv.ParseFloat(lvl[0], 64)
			volume, err2 := strconv.ParseFloat(lvl[1], 64)
			if err1 != nil || err2 != nil {
				continue
			}
			total += price * volume
		}
	}
	return total, nil
}

// Close закрывает источник (общий HTTP клиент остаётся жив)
func (s *HTTPSource) Close() error {
	return nil
}
