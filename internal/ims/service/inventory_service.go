package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-ims/internal/ims/entity"
	"github.com/bitfantasy/nimo-ims/internal/ims/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InventoryService 库存服务：库存查询、手工调整与盘点。
// 调整和盘点与收货共用同一套行锁 + 流水纪律。
type InventoryService struct {
	db          *gorm.DB
	invRepo     *repository.InventoryRepository
	productRepo *repository.ProductRepository
}

func NewInventoryService(db *gorm.DB, invRepo *repository.InventoryRepository, productRepo *repository.ProductRepository) *InventoryService {
	return &InventoryService{db: db, invRepo: invRepo, productRepo: productRepo}
}

// List 获取库存列表
func (s *InventoryService) List(ctx context.Context, params repository.InventoryListParams) ([]entity.Inventory, int64, error) {
	return s.invRepo.FindAll(ctx, params)
}

// GetByProduct 获取单个商品库存
func (s *InventoryService) GetByProduct(ctx context.Context, productID string) (*entity.Inventory, error) {
	return s.invRepo.FindByProduct(ctx, productID)
}

// ListTransactions 获取商品库存流水（按时间倒序）
func (s *InventoryService) ListTransactions(ctx context.Context, productID string, page, limit int) ([]entity.InventoryTransaction, int64, error) {
	return s.invRepo.ListTransactions(ctx, productID, page, limit)
}

// AdjustRequest 手工调整请求：quantity 带符号
type AdjustRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
}

// Adjust 手工调整在库数量。调整后 on_hand 不允许为负。
func (s *InventoryService) Adjust(ctx context.Context, userID string, req *AdjustRequest) (*entity.Inventory, error) {
	if _, err := s.productRepo.FindByID(ctx, req.ProductID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: 商品不存在: %s", ErrValidation, req.ProductID)
		}
		return nil, err
	}

	var result *entity.Inventory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.invRepo.LockOrCreateByProduct(tx, req.ProductID)
		if err != nil {
			return err
		}

		before := inv.QuantityOnHand
		after := before + req.Quantity
		if after < 0 {
			return fmt.Errorf("%w: 调整后库存为负: %d%+d", ErrValidation, before, req.Quantity)
		}

		inv.QuantityOnHand = after
		if err := s.invRepo.Save(tx, inv); err != nil {
			return fmt.Errorf("更新库存失败: %w", err)
		}

		if err := s.invRepo.AppendTransaction(tx, &entity.InventoryTransaction{
			ID:              uuid.New().String()[:32],
			ProductID:       req.ProductID,
			TransactionType: entity.TxTypeAdjustment,
			Quantity:        req.Quantity,
			QuantityBefore:  before,
			QuantityAfter:   after,
			ReferenceType:   "manual",
			Notes:           req.Reason,
			CreatedBy:       userID,
			CreatedAt:       time.Now(),
		}); err != nil {
			return fmt.Errorf("写入库存流水失败: %w", err)
		}

		result = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CountRequest 盘点请求：counted 为实盘数量
type CountRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Counted   int    `json:"counted" binding:"gte=0"`
	Notes     string `json:"notes"`
}

// Count 盘点：在库数量直接置为实盘值，差异记一条 count 流水，
// 同时更新盘点时间与盘点人。
func (s *InventoryService) Count(ctx context.Context, userID string, req *CountRequest) (*entity.Inventory, error) {
	if _, err := s.productRepo.FindByID(ctx, req.ProductID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: 商品不存在: %s", ErrValidation, req.ProductID)
		}
		return nil, err
	}
	if req.Counted < 0 {
		return nil, fmt.Errorf("%w: 实盘数量不能为负", ErrValidation)
	}

	var result *entity.Inventory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.invRepo.LockOrCreateByProduct(tx, req.ProductID)
		if err != nil {
			return err
		}

		now := time.Now()
		before := inv.QuantityOnHand
		inv.QuantityOnHand = req.Counted
		inv.LastCountDate = &now
		inv.LastCountBy = &userID
		if err := s.invRepo.Save(tx, inv); err != nil {
			return fmt.Errorf("更新库存失败: %w", err)
		}

		if err := s.invRepo.AppendTransaction(tx, &entity.InventoryTransaction{
			ID:              uuid.New().String()[:32],
			ProductID:       req.ProductID,
			TransactionType: entity.TxTypeCount,
			Quantity:        req.Counted - before,
			QuantityBefore:  before,
			QuantityAfter:   req.Counted,
			ReferenceType:   "manual",
			Notes:           req.Notes,
			CreatedBy:       userID,
			CreatedAt:       now,
		}); err != nil {
			return fmt.Errorf("写入库存流水失败: %w", err)
		}

		result = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
