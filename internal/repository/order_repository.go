package repository

import (
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"lotmarket/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository - работа с таблицей orders
//
// Ядро матчинга никогда не создает ордера: они приходят из модуля
// приема ордеров. Здесь только чтение активных ордеров и точечные
// обновления цены/объема для протоколов переговоров и подтверждения.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, side, asset, price, original_amount, remaining, matched, status, user_id, counterparty, created_at`

// scanOrder читает одну строку в модель ордера
func scanOrder(row interface {
	Scan(dest ...interface{}) error
}) (*models.Order, error) {
	order := &models.Order{}
	var counterparty sql.NullString

	err := row.Scan(
		&order.ID,
		&order.Side,
		&order.Asset,
		&order.Price,
		&order.OriginalAmount,
		&order.Remaining,
		&order.Matched,
		&order.Status,
		&order.UserID,
		&counterparty,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if counterparty.Valid {
		order.Counterparty = &counterparty.String
	}

	return order, nil
}

// collectOrders читает все строки результата в слайс ордеров
func collectOrders(rows *sql.Rows) ([]*models.Order, error) {
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// FindActive возвращает все активные ордера с remaining > 0,
// отсортированные (asset ASC, price DESC, created_at ASC)
func (r *OrderRepository) FindActive() ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1 AND remaining > 0
		ORDER BY asset ASC, price DESC, created_at ASC`

	rows, err := r.db.Query(query, models.OrderStatusActive)
	if err != nil {
		return nil, err
	}

	return collectOrders(rows)
}

// FindActiveByAsset возвращает активные ордера одного актива
func (r *OrderRepository) FindActiveByAsset(asset string) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1 AND remaining > 0 AND asset = $2
		ORDER BY price DESC, created_at ASC`

	rows, err := r.db.Query(query, models.OrderStatusActive, asset)
	if err != nil {
		return nil, err
	}

	return collectOrders(rows)
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(id string) (*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// UpdatePrice обновляет цену ордера (ход в переговорах)
func (r *OrderRepository) UpdatePrice(id string, price decimal.Decimal) error {
	query := `
		UPDATE orders
		SET price = $1
		WHERE id = $2`

	result, err := r.db.Exec(query, price, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// UpdateAmount устанавливает новый объем ордера.
//
// Используется только когда меньшая сторона подтверждения количества
// увеличивает свой объем: original_amount и remaining устанавливаются
// в одно и то же значение.
func (r *OrderRepository) UpdateAmount(id string, amount int64) error {
	query := `
		UPDATE orders
		SET original_amount = $1, remaining = $1
		WHERE id = $2`

	result, err := r.db.Exec(query, amount, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// FindTopOfBook возвращает верх стакана по одной стороне.
//
// Биды сортируются по убыванию цены, офферы по возрастанию;
// внутри цены - по времени создания. Запрос идет напрямую в
// хранилище, минуя снапшот-кэш движка.
func (r *OrderRepository) FindTopOfBook(asset string, side models.Side, limit int) ([]*models.Order, error) {
	direction := "DESC"
	if side == models.SideOffer {
		direction = "ASC"
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1 AND remaining > 0 AND asset = $2 AND side = $3
		ORDER BY price ` + direction + `, created_at ASC
		LIMIT $4`

	rows, err := r.db.Query(query, models.OrderStatusActive, asset, side, limit)
	if err != nil {
		return nil, err
	}

	return collectOrders(rows)
}

// SideTotals возвращает количество ордеров и сумму лотов одной стороны
func (r *OrderRepository) SideTotals(asset string, side models.Side) (int, int64, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(remaining), 0)
		FROM orders
		WHERE status = $1 AND remaining > 0 AND asset = $2 AND side = $3`

	var count int
	var lots int64
	err := r.db.QueryRow(query, models.OrderStatusActive, asset, side).Scan(&count, &lots)
	if err != nil {
		return 0, 0, err
	}

	return count, lots, nil
}

// CountActive возвращает количество активных ордеров
func (r *OrderRepository) CountActive() (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE status = $1 AND remaining > 0`

	var count int
	err := r.db.QueryRow(query, models.OrderStatusActive).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}
