// Package repository - хранение сделок и отчётов в PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"

	"tradecore/internal/models"
)

// jsoniter для сериализации metadata-колонок
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки репозитория сделок
var (
	ErrTradeNotFound = errors.New("trade not found")
)

// TradeRepository - работа с таблицей trades
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create сохраняет запись о завершённой сделке
func (r *TradeRepository) Create(ctx context.Context, trade *models.Trade) error {
	query := `
		INSERT INTO trades (symbol, direction, size, entry_price, exit_price, stop_loss, take_profit, agent_name, open_time, close_time, pnl, close_reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	metadata, err := marshalMetadata(trade.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(
		ctx,
		query,
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
		metadata,
	)
	return err
}

// GetRecent возвращает последние N сделок
func (r *TradeRepository) GetRecent(ctx context.Context, limit int) ([]*models.Trade, error) {
	query := `
		SELECT symbol, direction, size, entry_price, exit_price, stop_loss, take_profit, agent_name, open_time, close_time, pnl, close_reason, metadata
		FROM trades
		ORDER BY close_time DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByAgent возвращает сделки агента
func (r *TradeRepository) GetByAgent(ctx context.Context, agentName string, limit int) ([]*models.Trade, error) {
	query := `
		SELECT symbol, direction, size, entry_price, exit_price, stop_loss, take_profit, agent_name, open_time, close_time, pnl, close_reason, metadata
		FROM trades
		WHERE agent_name = $1
		ORDER BY close_time DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, agentName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

// Returns возвращает последние доходности сделок по символу
//
// Используется риск-менеджером для корреляционной проверки
// (реализация bot.ReturnsProvider).
func (r *TradeRepository) Returns(ctx context.Context, symbol string, periods int) ([]float64, error) {
	query := `
		SELECT pnl / NULLIF(entry_price, 0)
		FROM trades
		WHERE symbol = $1
		ORDER BY close_time DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, symbol, periods)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var returns []float64
	for rows.Next() {
		var value sql.NullFloat64
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		if value.Valid {
			returns = append(returns, value.Float64)
		}
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return returns, nil
}

// PnlSince возвращает суммарный PNL с указанного момента
func (r *TradeRepository) PnlSince(ctx context.Context, since time.Time) (float64, error) {
	query := `SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE close_time >= $1`

	var pnl float64
	err := r.db.QueryRowContext(ctx, query, since).Scan(&pnl)
	if err != nil {
		return 0, err
	}
	return pnl, nil
}

// Count возвращает общее количество сделок
func (r *TradeRepository) Count(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM trades`

	var count int
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// scanTrades читает строки в список сделок
func scanTrades(rows *sql.Rows) ([]*models.Trade, error) {
	var trades []*models.Trade
	for rows.Next() {
		trade := &models.Trade{}
		var direction, closeReason string
		var metadata []byte

		err := rows.Scan(
			&trade.Symbol,
			&direction,
			&trade.Size,
			&trade.EntryPrice,
			&trade.ExitPrice,
			&trade.StopLoss,
			&trade.TakeProfit,
			&trade.AgentName,
			&trade.OpenTime,
			&trade.CloseTime,
			&trade.Pnl,
			&closeReason,
			&metadata,
		)
		if err != nil {
			return nil, err
		}

		trade.Direction = models.Direction(direction)
		trade.CloseReason = models.CloseReason(closeReason)
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &trade.Metadata)
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}

// marshalMetadata сериализует metadata в JSON для jsonb-колонки
func marshalMetadata(metadata map[string]interface{}) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(metadata)
}
