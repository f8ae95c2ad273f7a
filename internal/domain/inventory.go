package domain

import "time"

// InventoryItem — строка складского реестра: доступное количество и цена
// одной товарной позиции (SKU). Количество меняют только checkout (списание)
// и restock (пополнение), оба — под эксклюзивной блокировкой строки.
type InventoryItem struct {
	SKU         string
	ProductID   int64
	ProductName string
	Size        string
	// Available — доступное количество; инвариант: никогда не уходит в минус.
	Available int32
	// UnitPriceMinor — цена за единицу в центах; инвариант: всегда положительна.
	UnitPriceMinor int64
	UpdatedAt      time.Time
}

// StockLine — снимок складской строки, прочитанный под блокировкой.
// Действителен до конца объемлющей транзакции.
type StockLine struct {
	SKU            string
	ProductName    string
	Size           string
	Available      int32
	UnitPriceMinor int64
}
