package marketdata

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSReconnectConfig конфигурация переподключения WebSocket источника
type WSReconnectConfig struct {
	// Начальная задержка перед переподключением
	InitialDelay time.Duration
	// Максимальная задержка (после exponential backoff)
	MaxDelay time.Duration
	// Максимальное количество попыток (0 = бесконечно)
	MaxRetries int
	// Таймаут подключения
	ConnectTimeout time.Duration
	// Интервал ping для проверки соединения
	PingInterval time.Duration
	// Таймаут ожидания pong
	PongTimeout time.Duration
	// Возраст кэшированной котировки, после которого она считается устаревшей
	StaleAfter time.Duration
}

// DefaultWSReconnectConfig возвращает конфигурацию по умолчанию
// Задержки переподключения: 2s, 4s, 8s, 16s
func DefaultWSReconnectConfig() WSReconnectConfig {
	return WSReconnectConfig{
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     0,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		StaleAfter:     10 * time.Second,
	}
}

// Состояние WebSocket соединения
type wsState int32

const (
	wsDisconnected wsState = iota
	wsConnecting
	wsConnected
	wsReconnecting
	wsClosed
)

// wsTickerMessage - входящее сообщение стрима
type wsTickerMessage struct {
	Channel      string  `json:"channel"`
	Symbol       string  `json:"symbol"`
	Price        string  `json:"price"`
	FundingRate  string  `json:"funding_rate"`
	OpenInterest float64 `json:"open_interest"`
	Liquidity    float64 `json:"liquidity"`
}

// wsEntry - кэшированное состояние символа из стрима
type wsEntry struct {
	price        float64
	fundingRate  float64
	openInterest float64
	liquidity    float64
	receivedAt   time.Time
}

// WSSource - стриминговый источник цен поверх WebSocket
//
// Держит одно соединение, подписывается на тикеры всех интересующих
// символов и кэширует последнее состояние. GetPrice отдаёт кэш:
// источник "отвечает" мгновенно, пока стрим жив. При разрыве
// переподключается с exponential backoff и восстанавливает подписки;
// устаревший кэш честно возвращает ErrStaleQuote, чтобы резолвер
// переключился на REST источники.
type WSSource struct {
	name   string
	wsURL  string
	config WSReconnectConfig
	logger *zap.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32 // atomic wsState
	retryCount int32 // atomic

	closeChan chan struct{}
	closeOnce sync.Once

	// symbol -> *wsEntry
	entries sync.Map

	// Подписки для восстановления после переподключения
	subscriptions   map[string]struct{}
	subscriptionsMu sync.Mutex
}

// NewWSSource создаёт стриминговый источник
func NewWSSource(name, wsURL string, config WSReconnectConfig, logger *zap.Logger) *WSSource {
	if config.StaleAfter <= 0 {
		config.StaleAfter = 10 * time.Second
	}
	return &WSSource{
		name:          name,
		wsURL:         wsURL,
		config:        config,
		logger:        logger.Named("ws_source").With(zap.String("source", name)),
		closeChan:     make(chan struct{}),
		subscriptions: make(map[string]struct{}),
	}
}

func (s *WSSource) Name() string {
	return s.name
}

func (s *WSSource) getState() wsState {
	return wsState(atomic.LoadInt32(&s.state))
}

func (s *WSSource) setState(st wsState) {
	atomic.StoreInt32(&s.state, int32(st))
}

// Connect устанавливает соединение и запускает read loop
func (s *WSSource) Connect() error {
	select {
	case <-s.closeChan:
		return fmt.Errorf("%s: source is closed", s.name)
	default:
	}

	s.setState(wsConnecting)
	if err := s.dial(); err != nil {
		s.setState(wsDisconnected)
		return err
	}

	go s.readLoop()
	go s.pingLoop()
	return nil
}

func (s *WSSource) dial() error {
	dialer := websocket.Dialer{
		HandshakeTimeout: s.config.ConnectTimeout,
	}

	conn, _, err := dialer.Dial(s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("%s: dial %s: %w", s.name, s.wsURL, err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.PingInterval + s.config.PongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(s.config.PingInterval + s.config.PongTimeout))

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.setState(wsConnected)
	atomic.StoreInt32(&s.retryCount, 0)
	s.logger.Info("websocket connected", zap.String("url", s.wsURL))

	return s.resubscribe()
}

// Subscribe подписывается на тикер символа
// Подписка переживает переподключения
func (s *WSSource) Subscribe(symbol string) error {
	s.subscriptionsMu.Lock()
	s.subscriptions[symbol] = struct{}{}
	s.subscriptionsMu.Unlock()

	if s.getState() != wsConnected {
		return nil // отправится при переподключении
	}
	return s.sendSubscribe(symbol)
}

func (s *WSSource) sendSubscribe(symbol string) error {
	msg := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{"ticker." + symbol},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	s.connMu.RLock()
	defer s.connMu.RUnlock()
	if s.conn == nil {
		return fmt.Errorf("%s: not connected", s.name)
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *WSSource) resubscribe() error {
	s.subscriptionsMu.Lock()
	symbols := make([]string, 0, len(s.subscriptions))
	for sym := range s.subscriptions {
		symbols = append(symbols, sym)
	}
	s.subscriptionsMu.Unlock()

	for _, sym := range symbols {
		if err := s.sendSubscribe(sym); err != nil {
			return fmt.Errorf("%s: resubscribe %s: %w", s.name, sym, err)
		}
	}
	return nil
}

// readLoop читает сообщения стрима и обновляет кэш
func (s *WSSource) readLoop() {
	for {
		select {
		case <-s.closeChan:
			return
		default:
		}

		s.connMu.RLock()
		conn := s.conn
		s.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.getState() == wsClosed {
				return
			}
			s.logger.Warn("websocket read failed, reconnecting", zap.Error(err))
			s.reconnect()
			return
		}

		s.handleMessage(data)
	}
}

func (s *WSSource) handleMessage(data []byte) {
	var msg wsTickerMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Channel != "ticker" || msg.Symbol == "" {
		return // служебные сообщения (подтверждения подписок, pong) игнорируем
	}

	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil || !Plausible(price) {
		return
	}

	entry := &wsEntry{
		price:        price,
		openInterest: msg.OpenInterest,
		liquidity:    msg.Liquidity,
		receivedAt:   time.Now(),
	}
	if rate, err := strconv.ParseFloat(msg.FundingRate, 64); err == nil {
		entry.fundingRate = rate
	}
	s.entries.Store(msg.Symbol, entry)
}

// pingLoop поддерживает живость соединения
func (s *WSSource) pingLoop() {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeChan:
			return
		case <-ticker.C:
			s.connMu.RLock()
			conn := s.conn
			s.connMu.RUnlock()
			if conn == nil || s.getState() != wsConnected {
				continue
			}
			deadline := time.Now().Add(s.config.PongTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Warn("ping failed", zap.Error(err))
			}
		}
	}
}

// reconnect переподключается с exponential backoff
func (s *WSSource) reconnect() {
	s.setState(wsReconnecting)

	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	delay := s.config.InitialDelay
	for {
		retries := atomic.AddInt32(&s.retryCount, 1)
		if s.config.MaxRetries > 0 && int(retries) > s.config.MaxRetries {
			s.logger.Error("reconnect attempts exhausted", zap.Int32("retries", retries))
			s.setState(wsDisconnected)
			return
		}

		select {
		case <-s.closeChan:
			return
		case <-time.After(delay):
		}

		s.logger.Info("reconnecting", zap.Int32("attempt", retries), zap.Duration("delay", delay))
		if err := s.dial(); err == nil {
			go s.readLoop()
			return
		}

		delay *= 2
		if delay > s.config.MaxDelay {
			delay = s.config.MaxDelay
		}
	}
}

// lookup возвращает свежую запись кэша или ошибку
func (s *WSSource) lookup(symbol string) (*wsEntry, error) {
	v, ok := s.entries.Load(symbol)
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", s.name, symbol, ErrNoPriceAvailable)
	}
	entry := v.(*wsEntry)
	if time.Since(entry.receivedAt) > s.config.StaleAfter {
		return nil, fmt.Errorf("%s: %s: %w (age %s)", s.name, symbol, ErrStaleQuote,
			time.Since(entry.receivedAt).Round(time.Millisecond))
	}
	return entry, nil
}

// GetPrice отдаёт кэшированную котировку стрима
//
// Latency здесь - возраст котировки: для живого стрима он близок к
// нулю, что честно отражает преимущество стрима перед REST опросом.
func (s *WSSource) GetPrice(ctx context.Context, symbol string) (*Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, err := s.lookup(symbol)
	if err != nil {
		return nil, err
	}

	age := time.Since(entry.receivedAt)
	return &Quote{
		Symbol:    symbol,
		Price:     entry.price,
		Source:    s.name,
		Latency:   age,
		Timestamp: entry.receivedAt,
	}, nil
}

// GetFundingRate отдаёт кэшированную ставку финансирования
func (s *WSSource) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	entry, err := s.lookup(symbol)
	if err != nil {
		return 0, err
	}
	return entry.fundingRate, nil
}

// GetOpenInterest отдаёт кэшированный открытый интерес
func (s *WSSource) GetOpenInterest(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	entry, err := s.lookup(symbol)
	if err != nil {
		return 0, err
	}
	return entry.openInterest, nil
}

// GetLiquidity отдаёт кэшированную оценку ликвидности
func (s *WSSource) GetLiquidity(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	entry, err := s.lookup(symbol)
	if err != nil {
		return 0, err
	}
	if entry.liquidity <= 0 || math.IsNaN(entry.liquidity) {
		return 0, nil
	}
	return entry.liquidity, nil
}

// Close закрывает соединение и останавливает все горутины
func (s *WSSource) Close() error {
	s.closeOnce.Do(func() {
		s.setState(wsClosed)
		close(s.closeChan)

		s.connMu.Lock()
		if s.conn != nil {
			_ = s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			_ = s.conn.Close()
			s.conn = nil
		}
		s.connMu.Unlock()
	})
	return nil
}
