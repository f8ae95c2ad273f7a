package domain

import "time"

// User — покупатель. Активность проверяется внутри checkout-транзакции,
// а не заранее, чтобы исключить гонку между проверкой и использованием.
type User struct {
	ID        int64
	Name      string
	Email     string
	Address   string
	Phone     string
	Active    bool
	CreatedAt time.Time
}
