package utils

import (
	"github.com/shopspring/decimal"
)

// math.go - чистые вычисления для ядра матчинга
//
// Назначение:
// Денежная арифметика и вспомогательные функции без побочных эффектов.
// Цены и комиссии - decimal с двумя знаками, объемы - целые лоты.
//
// Функции:
// - Commission: комиссия сделки
// - SpreadPct: спред между бидом и оффером в процентах
// - FormatMoney: денежный формат для текстовых сообщений
// - OrderIDPrefix: короткий префикс ордера для ответов во вторичном канале

// OrderIDPrefixLen - длина префикса ордера в текстовых ответах
// пользователей (YES <prefix> / NO <prefix>)
const OrderIDPrefixLen = 8

// Commission вычисляет комиссию сделки.
//
// Формула: round(amount × price × rate, 2 знака), округление half-up.
//
// Параметры:
//   - amount: объем сделки в лотах
//   - price: цена за лот
//   - rate: ставка комиссии в долях (0.001 = 0.1%)
//
// Примеры:
//   - Commission(5, 100.00, 0.001) = 0.50
//   - Commission(2, 10.00, 0.001) = 0.02
func Commission(amount int64, price decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	raw := price.Mul(decimal.NewFromInt(amount)).Mul(rate)
	// decimal.Round округляет half away from zero, что для положительных
	// сумм совпадает с half-up
	return raw.Round(2)
}

// SpreadPct вычисляет спред между лучшим бидом и лучшим оффером
// в процентах от бида.
//
// Формула: (offer - bid) / bid × 100
//
// Возвращает 0, если bid не положителен.
func SpreadPct(bid, offer decimal.Decimal) decimal.Decimal {
	if bid.Sign() <= 0 {
		return decimal.Zero
	}
	return offer.Sub(bid).Div(bid).Mul(decimal.NewFromInt(100))
}

// FormatMoney форматирует сумму для текстовых сообщений: "$12.34"
func FormatMoney(v decimal.Decimal) string {
	return "$" + v.StringFixed(2)
}

// OrderIDPrefix возвращает первые 8 символов идентификатора ордера.
// Короткие идентификаторы возвращаются целиком.
func OrderIDPrefix(id string) string {
	if len(id) <= OrderIDPrefixLen {
		return id
	}
	return id[:OrderIDPrefixLen]
}

// MinInt64 возвращает минимум из двух целых
func MinInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
