package entity

import "time"

// Inventory 库存投影（每个商品一行）
// quantity_on_hand 与 quantity_on_order 永不为负；
// 汇总上可由 inventory_transactions 与未完结PO重建。
type Inventory struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	ProductID string `json:"product_id" gorm:"size:32;not null;uniqueIndex"`

	QuantityOnHand   int `json:"quantity_on_hand" gorm:"not null;default:0"`
	QuantityReserved int `json:"quantity_reserved" gorm:"not null;default:0"`
	QuantityOnOrder  int `json:"quantity_on_order" gorm:"not null;default:0"`

	LastCountDate *time.Time `json:"last_count_date"`
	LastCountBy   *string    `json:"last_count_by" gorm:"size:32"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID;references:ID"`
}

func (Inventory) TableName() string {
	return "inventory"
}

// 库存交易类型
const (
	TxTypePurchaseReceive = "purchase_receive" // 采购收货
	TxTypeSale            = "sale"             // 销售出库
	TxTypeAdjustment      = "adjustment"       // 库存调整
	TxTypeReturn          = "return"           // 退货
	TxTypeTransfer        = "transfer"         // 调拨
	TxTypeCount           = "count"            // 盘点
)

// InventoryTransaction 库存流水（只追加，不修改）
// quantity 带符号；quantity_after == quantity_before + quantity。
type InventoryTransaction struct {
	ID              string `json:"id" gorm:"primaryKey;size:32"`
	ProductID       string `json:"product_id" gorm:"size:32;not null;index"`
	TransactionType string `json:"transaction_type" gorm:"size:20;not null"`

	Quantity       int `json:"quantity" gorm:"not null"`
	QuantityBefore int `json:"quantity_before" gorm:"not null"`
	QuantityAfter  int `json:"quantity_after" gorm:"not null"`

	ReferenceType string `json:"reference_type" gorm:"size:50"` // purchase_order/adjustment/count
	ReferenceID   string `json:"reference_id" gorm:"size:64"`

	Notes     string    `json:"notes" gorm:"type:text"`
	CreatedBy string    `json:"created_by" gorm:"size:32;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (InventoryTransaction) TableName() string {
	return "inventory_transactions"
}
