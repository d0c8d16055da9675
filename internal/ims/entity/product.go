package entity

import "time"

// Product 商品（由外部系统维护，本服务只读引用）
type Product struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	SKU          string    `json:"sku" gorm:"size:64;uniqueIndex;not null"`
	Name         string    `json:"name" gorm:"size:200;not null"`
	Unit         string    `json:"unit" gorm:"size:20;default:pcs"`
	CostPrice    float64   `json:"cost_price" gorm:"type:decimal(12,4);default:0"`
	SellingPrice float64   `json:"selling_price" gorm:"type:decimal(12,4);default:0"`
	ReorderLevel int       `json:"reorder_level" gorm:"default:0"`
	IsActive     bool      `json:"is_active" gorm:"default:true"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}
