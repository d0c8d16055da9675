package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-ims/internal/ims/entity"
	"gorm.io/gorm"
)

// ReceiptRepository 收货单仓库
type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Create 创建收货单（事务内）
func (r *ReceiptRepository) Create(tx *gorm.DB, receipt *entity.DeliveryReceipt) error {
	return tx.Create(receipt).Error
}

// FindByID 查询收货单
func (r *ReceiptRepository) FindByID(ctx context.Context, id string) (*entity.DeliveryReceipt, error) {
	var receipt entity.DeliveryReceipt
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

// Update 更新收货单
func (r *ReceiptRepository) Update(ctx context.Context, receipt *entity.DeliveryReceipt) error {
	return r.db.WithContext(ctx).Save(receipt).Error
}

// FindByOrder 查询订单的所有收货单
func (r *ReceiptRepository) FindByOrder(ctx context.Context, poID string) ([]entity.DeliveryReceipt, error) {
	var rows []entity.DeliveryReceipt
	err := r.db.WithContext(ctx).
		Where("purchase_order_id = ?", poID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// CountByOrder 统计订单收货单数量（事务内）
func (r *ReceiptRepository) CountByOrder(tx *gorm.DB, poID string) (int64, error) {
	var count int64
	err := tx.Model(&entity.DeliveryReceipt{}).
		Where("purchase_order_id = ?", poID).
		Count(&count).Error
	return count, err
}

// FileByOrder 将订单的收货单全部标记为已归档（事务内，可重复执行）
func (r *ReceiptRepository) FileByOrder(tx *gorm.DB, poID, filedBy string, filedAt time.Time) error {
	return tx.Model(&entity.DeliveryReceipt{}).
		Where("purchase_order_id = ?", poID).
		Updates(map[string]interface{}{
			"status":   entity.ReceiptStatusFiled,
			"filed_by": filedBy,
			"filed_at": filedAt,
		}).Error
}

// NextReceiptNumber 在事务内分配收货单号 GRN-{日期}-{序号}。
// 通过 receipt_sequences 行级原子自增分配，并发安全。
func (r *ReceiptRepository) NextReceiptNumber(tx *gorm.DB, now time.Time) (string, error) {
	day := now.Format("20060102")

	var seq int
	err := tx.Raw(`
		INSERT INTO receipt_sequences (day, last_seq) VALUES (?, 1)
		ON CONFLICT (day) DO UPDATE SET last_seq = receipt_sequences.last_seq + 1
		RETURNING last_seq
	`, day).Scan(&seq).Error
	if err != nil {
		return "", fmt.Errorf("分配收货单号失败: %w", err)
	}

	return fmt.Sprintf("GRN-%s-%03d", day, seq), nil
}
