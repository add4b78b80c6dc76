package repository

import (
	"database/sql"
	"errors"

	"lotmarket/internal/models"
)

// Ошибки репозитория пользователей
var (
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository - чтение участников торгов
//
// Ядру нужны только имя пользователя и адрес во вторичном канале;
// управление пользователями живет во внешних модулях.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository создает новый экземпляр репозитория
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID возвращает пользователя по ID
func (r *UserRepository) GetByID(id string) (*models.User, error) {
	query := `
		SELECT id, username, COALESCE(secondary_address, '')
		FROM users
		WHERE id = $1`

	user := &models.User{}
	err := r.db.QueryRow(query, id).Scan(
		&user.ID,
		&user.Username,
		&user.SecondaryAddress,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil
}
