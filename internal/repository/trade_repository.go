package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lotmarket/internal/models"
)

// TradeRepository - работа с таблицей trades и атомарный коммит сделки
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// CommitTrade атомарно фиксирует сделку между бидом и оффером.
//
// Одна транзакция:
//  1. Вставка записи о сделке.
//  2. Уменьшение remaining бида на amount; при нуле ордер переходит
//     в MATCHED и получает counterparty = userID продавца.
//  3. Симметричное обновление оффера.
//
// Успех транзакции - точка линеаризации сделки. При любой ошибке
// откат, никаких видимых изменений.
//
// Параметры bid/offer - снапшоты: их remaining берется как состояние
// "до", amount обязан не превышать ни один из них.
func (r *TradeRepository) CommitTrade(bid, offer *models.Order, amount int64, price, commission decimal.Decimal) (*models.Trade, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("trade amount must be positive, got %d", amount)
	}
	if amount > bid.Remaining || amount > offer.Remaining {
		return nil, fmt.Errorf("trade amount %d exceeds remaining (bid %d, offer %d)",
			amount, bid.Remaining, offer.Remaining)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback после Commit безвреден
	defer tx.Rollback()

	trade := &models.Trade{
		ID:            uuid.New().String(),
		Asset:         bid.Asset,
		Price:         price,
		Amount:        amount,
		BuyerOrderID:  bid.ID,
		SellerOrderID: offer.ID,
		BuyerID:       bid.UserID,
		SellerID:      offer.UserID,
		Commission:    commission,
		CreatedAt:     time.Now().UTC(),
	}

	insertQuery := `
		INSERT INTO trades (id, asset, price, amount, buyer_order_id, seller_order_id, buyer_id, seller_id, commission, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = tx.Exec(
		insertQuery,
		trade.ID,
		trade.Asset,
		trade.Price,
		trade.Amount,
		trade.BuyerOrderID,
		trade.SellerOrderID,
		trade.BuyerID,
		trade.SellerID,
		trade.Commission,
		trade.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert trade: %w", err)
	}

	if err := applyFill(tx, bid, amount, offer.UserID); err != nil {
		return nil, fmt.Errorf("failed to update bid order: %w", err)
	}

	if err := applyFill(tx, offer, amount, bid.UserID); err != nil {
		return nil, fmt.Errorf("failed to update offer order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit trade transaction: %w", err)
	}

	return trade, nil
}

// applyFill уменьшает remaining ордера внутри транзакции
func applyFill(tx *sql.Tx, order *models.Order, amount int64, counterparty string) error {
	newRemaining := order.Remaining - amount
	matched := newRemaining == 0

	status := models.OrderStatusActive
	var counterpartyArg interface{}
	if matched {
		status = models.OrderStatusMatched
		counterpartyArg = counterparty
	}

	query := `
		UPDATE orders
		SET remaining = $1, matched = $2, status = $3, counterparty = $4
		WHERE id = $5 AND remaining = $6`

	// Условие remaining = $6 защищает от одновременного изменения
	// ордера снаружи: тогда транзакция откатится и пара будет
	// пересмотрена на следующем проходе
	result, err := tx.Exec(query, newRemaining, matched, status, counterpartyArg, order.ID, order.Remaining)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("order %s changed concurrently", order.ID)
	}

	return nil
}

// GetByID возвращает сделку по ID
func (r *TradeRepository) GetByID(id string) (*models.Trade, error) {
	query := `
		SELECT id, asset, price, amount, buyer_order_id, seller_order_id, buyer_id, seller_id, commission, created_at
		FROM trades
		WHERE id = $1`

	trade := &models.Trade{}
	err := r.db.QueryRow(query, id).Scan(
		&trade.ID,
		&trade.Asset,
		&trade.Price,
		&trade.Amount,
		&trade.BuyerOrderID,
		&trade.SellerOrderID,
		&trade.BuyerID,
		&trade.SellerID,
		&trade.Commission,
		&trade.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("trade %s not found", id)
		}
		return nil, err
	}

	return trade, nil
}

// GetRecentByAsset возвращает последние сделки по активу
func (r *TradeRepository) GetRecentByAsset(asset string, limit int) ([]*models.Trade, error) {
	query := `
		SELECT id, asset, price, amount, buyer_order_id, seller_order_id, buyer_id, seller_id, commission, created_at
		FROM trades
		WHERE asset = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, asset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		trade := &models.Trade{}
		err := rows.Scan(
			&trade.ID,
			&trade.Asset,
			&trade.Price,
			&trade.Amount,
			&trade.BuyerOrderID,
			&trade.SellerOrderID,
			&trade.BuyerID,
			&trade.SellerID,
			&trade.Commission,
			&trade.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}
