package repository

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"tradecore/internal/config"
	"tradecore/internal/models"
)

// PostgresSink - приёмник отчётов поверх PostgreSQL
//
// Реализует reporting.Sink: сделки, исполнения, риск-события и сводки
// эффективности ложатся в отдельные таблицы.
type PostgresSink struct {
	db      *sql.DB
	trades  *TradeRepository
	reports *ReportRepository
}

// NewPostgresSink открывает пул соединений и проверяет доступность базы
func NewPostgresSink(cfg config.DatabaseConfig) (*PostgresSink, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return NewPostgresSinkWithDB(db), nil
}

// NewPostgresSinkWithDB оборачивает готовое подключение (тесты, миграции)
func NewPostgresSinkWithDB(db *sql.DB) *PostgresSink {
	return &PostgresSink{
		db:      db,
		trades:  NewTradeRepository(db),
		reports: NewReportRepository(db),
	}
}

// Trades возвращает репозиторий сделок
//
// Нужен риск-менеджеру как поставщик истории доходностей.
func (s *PostgresSink) Trades() *TradeRepository {
	return s.trades
}

// Reports возвращает репозиторий отчётов
func (s *PostgresSink) Reports() *ReportRepository {
	return s.reports
}

func (s *PostgresSink) SaveTrade(ctx context.Context, trade *models.Trade) error {
	return s.trades.Create(ctx, trade)
}

func (s *PostgresSink) SaveExecution(ctx context.Context, report *models.ExecutionReport) error {
	return s.reports.CreateExecution(ctx, report)
}

func (s *PostgresSink) SaveRiskEvent(ctx context.Context, event *models.RiskEvent) error {
	return s.reports.CreateRiskEvent(ctx, event)
}

func (s *PostgresSink) SavePerformance(ctx context.Context, report *models.PerformanceReport) error {
	return s.reports.CreatePerformance(ctx, report)
}

// Close закрывает пул соединений
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
