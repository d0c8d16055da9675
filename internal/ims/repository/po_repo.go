package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-ims/internal/ims/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PORepository 采购订单仓库
type PORepository struct {
	db *gorm.DB
}

func NewPORepository(db *gorm.DB) *PORepository {
	return &PORepository{db: db}
}

// POListParams 采购订单列表查询参数
type POListParams struct {
	Status     string
	SupplierID string
	Search     string
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	Limit      int
}

// FindAll 查询采购订单列表
func (r *PORepository) FindAll(ctx context.Context, params POListParams) ([]entity.PurchaseOrder, int64, error) {
	var orders []entity.PurchaseOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.PurchaseOrder{})

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.SupplierID != "" {
		query = query.Where("supplier_id = ?", params.SupplierID)
	}
	if params.Search != "" {
		query = query.Where("po_number ILIKE ?", "%"+params.Search+"%")
	}
	if params.DateFrom != nil {
		query = query.Where("order_date >= ?", *params.DateFrom)
	}
	if params.DateTo != nil {
		query = query.Where("order_date <= ?", *params.DateTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (params.Page - 1) * params.Limit
	err := query.
		Preload("Supplier").
		Order("created_at DESC").
		Offset(offset).
		Limit(params.Limit).
		Find(&orders).Error

	return orders, total, err
}

// FindByID 根据ID查找采购订单（含行项和商品）
func (r *PORepository) FindByID(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	var po entity.PurchaseOrder
	err := r.db.WithContext(ctx).
		Preload("Supplier").
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Items.Product").
		Where("id = ?", id).
		First(&po).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &po, nil
}

// LockByID 在事务内对订单头加行锁并返回订单与行项。
// 先锁头再取行项，保证 Edit 和 Receive 并发时串行化。
func (r *PORepository) LockByID(tx *gorm.DB, id string) (*entity.PurchaseOrder, error) {
	var po entity.PurchaseOrder
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&po).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := tx.Where("purchase_order_id = ?", id).Order("created_at ASC").Find(&po.Items).Error; err != nil {
		return nil, err
	}
	return &po, nil
}

// NextPONumber 在事务内分配单号 PO-{year}-{5位序号}。
// 通过 po_sequences 行级原子自增分配，并发安全。
func (r *PORepository) NextPONumber(tx *gorm.DB, now time.Time) (string, error) {
	year := now.Format("2006")

	var seq int
	err := tx.Raw(`
		INSERT INTO po_sequences (year, last_seq) VALUES (?, 1)
		ON CONFLICT (year) DO UPDATE SET last_seq = po_sequences.last_seq + 1
		RETURNING last_seq
	`, year).Scan(&seq).Error
	if err != nil {
		return "", fmt.Errorf("分配PO单号失败: %w", err)
	}

	return fmt.Sprintf("PO-%s-%05d", year, seq), nil
}

// StatusCount 状态统计
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// CountByStatus 按状态统计订单数
func (r *PORepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	err := r.db.WithContext(ctx).
		Model(&entity.PurchaseOrder{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	return rows, err
}

// SumTotalAmountSince 统计某时间之后创建订单的总金额（不含已取消）
func (r *PORepository) SumTotalAmountSince(ctx context.Context, since time.Time) (float64, error) {
	var result struct{ Total float64 }
	err := r.db.WithContext(ctx).
		Model(&entity.PurchaseOrder{}).
		Select("COALESCE(SUM(total_amount), 0) as total").
		Where("created_at >= ? AND status != ?", since, entity.POStatusCancelled).
		Scan(&result).Error
	return result.Total, err
}
