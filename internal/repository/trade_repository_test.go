package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"tradecore/internal/models"
)

func sampleTrade() *models.Trade {
	return &models.Trade{
		Symbol:      "BTC/USDT",
		Direction:   models.DirectionLong,
		Size:        0.5,
		EntryPrice:  50000,
		ExitPrice:   52000,
		StopLoss:    48000,
		TakeProfit:  55000,
		AgentName:   "trend-follower",
		OpenTime:    time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		CloseTime:   time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC),
		Pnl:         1000,
		CloseReason: models.CloseReasonTakeProfit,
	}
}

func TestTradeRepositoryCreate(t *testing.T) {
	tests := []struct {
		name      string
		trade     *models.Trade
		mockSetup func(sqlmock.Sqlmock, *models.Trade)
		wantErr   bool
	}{
		{
			name:  "successful insert",
			trade: sampleTrade(),
			mockSetup: func(mock sqlmock.Sqlmock, trade *models.Trade) {
				mock.ExpectExec(`INSERT INTO trades`).
					WithArgs(
						trade.Symbol,
						string(trade.Direction),
						trade.Size,
						trade.EntryPrice,
						trade.ExitPrice,
						trade.StopLoss,
						trade.TakeProfit,
						trade.AgentName,
						trade.OpenTime,
						trade.CloseTime,
						trade.Pnl,
						string(trade.CloseReason),
						[]byte("{}"),
					).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
			wantErr: false,
		},
		{
			name:  "database error",
			trade: sampleTrade(),
			mockSetup: func(mock sqlmock.Sqlmock, trade *models.Trade) {
				mock.ExpectExec(`INSERT INTO trades`).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock, tt.trade)

			repo := NewTradeRepository(db)
			err = repo.Create(context.Background(), tt.trade)

			if (err != nil) != tt.wantErr {
				t.Errorf("Create() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestTradeRepositoryGetByAgent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	trade := sampleTrade()
	rows := sqlmock.NewRows([]string{
		"symbol", "direction", "size", "entry_price", "exit_price",
		"stop_loss", "take_profit", "agent_name", "open_time", "close_time",
		"pnl", "close_reason", "metadata",
	}).AddRow(
		trade.Symbol, string(trade.Direction), trade.Size, trade.EntryPrice, trade.ExitPrice,
		trade.StopLoss, trade.TakeProfit, trade.AgentName, trade.OpenTime, trade.CloseTime,
		trade.Pnl, string(trade.CloseReason), []byte(`{"source":"backtest"}`),
	)

	mock.ExpectQuery(`SELECT (.+) FROM trades`).
		WithArgs("trend-follower", 10).
		WillReturnRows(rows)

	repo := NewTradeRepository(db)
	trades, err := repo.GetByAgent(context.Background(), "trend-follower", 10)
	if err != nil {
		t.Fatalf("GetByAgent() error = %v", err)
	}

	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	got := trades[0]
	if got.Symbol != trade.Symbol || got.Direction != models.DirectionLong {
		t.Errorf("trade mismatch: %+v", got)
	}
	if got.CloseReason != models.CloseReasonTakeProfit {
		t.Errorf("close reason = %v, want TAKE_PROFIT", got.CloseReason)
	}
	if got.Metadata["source"] != "backtest" {
		t.Errorf("metadata not restored: %+v", got.Metadata)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTradeRepositoryReturns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"return"}).
		AddRow(0.02).
		AddRow(-0.01).
		AddRow(nil). // нулевая цена входа отфильтрована через NULLIF
		AddRow(0.005)

	mock.ExpectQuery(`SELECT pnl / NULLIF`).
		WithArgs("BTC/USDT", 30).
		WillReturnRows(rows)

	repo := NewTradeRepository(db)
	returns, err := repo.Returns(context.Background(), "BTC/USDT", 30)
	if err != nil {
		t.Fatalf("Returns() error = %v", err)
	}

	want := []float64{0.02, -0.01, 0.005}
	if len(returns) != len(want) {
		t.Fatalf("got %d returns, want %d", len(returns), len(want))
	}
	for i, w := range want {
		if returns[i] != w {
			t.Errorf("returns[%d] = %v, want %v", i, returns[i], w)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTradeRepositoryPnlSince(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(pnl\), 0\) FROM trades`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(1234.5))

	repo := NewTradeRepository(db)
	pnl, err := repo.PnlSince(context.Background(), since)
	if err != nil {
		t.Fatalf("PnlSince() error = %v", err)
	}
	if pnl != 1234.5 {
		t.Errorf("pnl = %v, want 1234.5", pnl)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
