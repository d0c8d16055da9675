package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-ims/internal/ims/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryRepository 库存仓库
type InventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// InventoryListParams 库存列表查询参数
type InventoryListParams struct {
	ProductID string
	LowStock  bool
	Page      int
	Limit     int
}

// FindAll 查询库存列表
func (r *InventoryRepository) FindAll(ctx context.Context, params InventoryListParams) ([]entity.Inventory, int64, error) {
	var rows []entity.Inventory
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Inventory{})
	if params.ProductID != "" {
		query = query.Where("product_id = ?", params.ProductID)
	}
	if params.LowStock {
		query = query.Joins("JOIN products ON products.id = inventory.product_id").
			Where("inventory.quantity_on_hand < products.reorder_level AND products.reorder_level > 0")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (params.Page - 1) * params.Limit
	err := query.
		Preload("Product").
		Order("updated_at DESC").
		Offset(offset).
		Limit(params.Limit).
		Find(&rows).Error

	return rows, total, err
}

// FindByProduct 按商品查库存行
func (r *InventoryRepository) FindByProduct(ctx context.Context, productID string) (*entity.Inventory, error) {
	var inv entity.Inventory
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// LockByProduct 在事务内对库存行加行锁；行不存在时返回 ErrNotFound。
func (r *InventoryRepository) LockByProduct(tx *gorm.DB, productID string) (*entity.Inventory, error) {
	var inv entity.Inventory
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productID).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// LockOrCreateByProduct 在事务内对库存行加行锁，不存在则先建零值行。
// 先插入（冲突忽略）再锁定，避免两个并发建行时丢一条。
func (r *InventoryRepository) LockOrCreateByProduct(tx *gorm.DB, productID string) (*entity.Inventory, error) {
	row := entity.Inventory{
		ID:        uuid.New().String()[:32],
		ProductID: productID,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return nil, err
	}
	return r.LockByProduct(tx, productID)
}

// Save 保存库存行（事务内）
func (r *InventoryRepository) Save(tx *gorm.DB, inv *entity.Inventory) error {
	return tx.Save(inv).Error
}

// AppendTransaction 追加一条库存流水（事务内，只插入）
func (r *InventoryRepository) AppendTransaction(tx *gorm.DB, row *entity.InventoryTransaction) error {
	return tx.Create(row).Error
}

// ListTransactions 查询商品流水，按创建时间排序
func (r *InventoryRepository) ListTransactions(ctx context.Context, productID string, page, limit int) ([]entity.InventoryTransaction, int64, error) {
	var rows []entity.InventoryTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.InventoryTransaction{}).
		Where("product_id = ?", productID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&rows).Error
	return rows, total, err
}
