package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tradecore/internal/models"
)

func TestGetTrades(t *testing.T) {
	fake := &fakeStatus{trades: []*models.Trade{
		{Symbol: "BTC/USDT", AgentName: "alpha", Pnl: 100},
		{Symbol: "ETH/USDT", AgentName: "beta", Pnl: -50},
	}}
	handler := NewHistoryHandler(fake)

	rr := httptest.NewRecorder()
	handler.GetTrades(rr, httptest.NewRequest("GET", "/api/v1/trades", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var trades []*models.Trade
	if err := json.Unmarshal(rr.Body.Bytes(), &trades); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(trades) != 2 {
		t.Errorf("got %d trades, want 2", len(trades))
	}
}

func TestGetTradesAgentFilter(t *testing.T) {
	fake := &fakeStatus{trades: []*models.Trade{
		{Symbol: "BTC/USDT", AgentName: "alpha", Pnl: 100},
		{Symbol: "ETH/USDT", AgentName: "beta", Pnl: -50},
	}}
	handler := NewHistoryHandler(fake)

	rr := httptest.NewRecorder()
	handler.GetTrades(rr, httptest.NewRequest("GET", "/api/v1/trades?agent=alpha", nil))

	var trades []*models.Trade
	if err := json.Unmarshal(rr.Body.Bytes(), &trades); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(trades) != 1 || trades[0].AgentName != "alpha" {
		t.Errorf("agent filter failed: %v", trades)
	}
}

func TestGetTradesLimitClamped(t *testing.T) {
	// limit больше максимума ограничивается до 500
	trades := make([]*models.Trade, 0, 600)
	for i := 0; i < 600; i++ {
		trades = append(trades, &models.Trade{Symbol: "BTC/USDT"})
	}
	handler := NewHistoryHandler(&fakeStatus{trades: trades})

	rr := httptest.NewRecorder()
	handler.GetTrades(rr, httptest.NewRequest("GET", "/api/v1/trades?limit=10000", nil))

	var got []*models.Trade
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != maxHistoryLimit {
		t.Errorf("got %d trades, want %d", len(got), maxHistoryLimit)
	}
}

func TestGetTradesStoreError(t *testing.T) {
	handler := NewHistoryHandler(&fakeStatus{err: errors.New("db down")})

	rr := httptest.NewRecorder()
	handler.GetTrades(rr, httptest.NewRequest("GET", "/api/v1/trades", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error != "failed to get trades" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestGetRiskEventsEmptyIsArray(t *testing.T) {
	handler := NewHistoryHandler(&fakeStatus{})

	rr := httptest.NewRecorder()
	handler.GetRiskEvents(rr, httptest.NewRequest("GET", "/api/v1/risk-events", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if body := rr.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestGetRiskEvents(t *testing.T) {
	fake := &fakeStatus{events: []*models.RiskEvent{
		{Type: models.RiskEventLiquidation, Severity: models.SeverityCritical, Symbol: "BTC/USDT"},
	}}
	handler := NewHistoryHandler(fake)

	rr := httptest.NewRecorder()
	handler.GetRiskEvents(rr, httptest.NewRequest("GET", "/api/v1/risk-events", nil))

	var events []*models.RiskEvent
	if err := json.Unmarshal(rr.Body.Bytes(), &events); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(events) != 1 || events[0].Type != models.RiskEventLiquidation {
		t.Errorf("unexpected events: %v", events)
	}
}
