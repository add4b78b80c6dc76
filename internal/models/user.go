package models

// User представляет участника торгов
//
// Ядру нужны только имя (для текстов уведомлений) и адрес
// во вторичном канале. Остальные атрибуты пользователя живут
// во внешних модулях.
type User struct {
	ID               string `json:"id" db:"id"`
	Username         string `json:"username" db:"username"`
	SecondaryAddress string `json:"secondary_address,omitempty" db:"secondary_address"` // пустой = канал недоступен
}
