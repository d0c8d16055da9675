package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 仓库集合
type Repositories struct {
	PO        *PORepository
	Inventory *InventoryRepository
	Receipt   *ReceiptRepository
	Supplier  *SupplierRepository
	Product   *ProductRepository
	Activity  *ActivityLogRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		PO:        NewPORepository(db),
		Inventory: NewInventoryRepository(db),
		Receipt:   NewReceiptRepository(db),
		Supplier:  NewSupplierRepository(db),
		Product:   NewProductRepository(db),
		Activity:  NewActivityLogRepository(db),
	}
}
