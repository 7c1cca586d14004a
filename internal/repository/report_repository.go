package repository

import (
	"context"
	"database/sql"

	"tradecore/internal/models"
)

// ReportRepository - таблицы executions, risk_events и performance
type ReportRepository struct {
	db *sql.DB
}

// NewReportRepository создает новый экземпляр репозитория
func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// CreateExecution сохраняет отчёт об исполнении
func (r *ReportRepository) CreateExecution(ctx context.Context, report *models.ExecutionReport) error {
	query := `
		INSERT INTO executions (symbol, action, direction, size, price, agent_name, confidence, reason, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	metadata, err := marshalMetadata(report.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(
		ctx,
		query,
		report.Symbol,
		string(report.Action),
		string(report.Direction),
		report.Size,
		report.Price,
		report.AgentName,
		report.Confidence,
		report.Reason,
		report.Timestamp,
		metadata,
	)
	return err
}

// CreateRiskEvent сохраняет риск-событие
func (r *ReportRepository) CreateRiskEvent(ctx context.Context, event *models.RiskEvent) error {
	query := `
		INSERT INTO risk_events (type, severity, symbol, message, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`

	metadata, err := marshalMetadata(event.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(
		ctx,
		query,
		string(event.Type),
		event.Severity,
		event.Symbol,
		event.Message,
		event.Timestamp,
		metadata,
	)
	return err
}

// CreatePerformance сохраняет снимок производительности агента
func (r *ReportRepository) CreatePerformance(ctx context.Context, report *models.PerformanceReport) error {
	query := `
		INSERT INTO performance (agent_name, total_pnl, daily_pnl, total_trades, win_trades, loss_trades, win_rate, avg_profit, avg_loss, max_drawdown, sharpe, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(
		ctx,
		query,
		report.AgentName,
		report.TotalPnl,
		report.DailyPnl,
		report.TotalTrades,
		report.WinTrades,
		report.LossTrades,
		report.WinRate,
		report.AvgProfit,
		report.AvgLoss,
		report.MaxDrawdown,
		report.Sharpe,
		report.Timestamp,
	)
	return err
}

// RecentRiskEvents возвращает последние риск-события
func (r *ReportRepository) RecentRiskEvents(ctx context.Context, limit int) ([]*models.RiskEvent, error) {
	query := `
		SELECT type, severity, symbol, message, created_at, metadata
		FROM risk_events
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.RiskEvent
	for rows.Next() {
		event := &models.RiskEvent{}
		var eventType string
		var metadata []byte

		err := rows.Scan(
			&eventType,
			&event.Severity,
			&event.Symbol,
			&event.Message,
			&event.Timestamp,
			&metadata,
		)
		if err != nil {
			return nil, err
		}

		event.Type = models.RiskEventType(eventType)
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &event.Metadata)
		}
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
