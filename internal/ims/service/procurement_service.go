package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-ims/internal/ims/entity"
	"github.com/bitfantasy/nimo-ims/internal/ims/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrValidation 参数校验失败
	ErrValidation = errors.New("validation failed")
	// ErrInvalidStatus 当前状态不允许该操作
	ErrInvalidStatus = errors.New("invalid order status")
)

// ProcurementService 采购服务：采购订单全生命周期 + 库存投影与流水维护。
// 每个写操作在单个数据库事务内完成：订单头行锁 + 触及的库存行行锁，
// 订单、行项、库存、流水要么全部落库要么全部回滚。
type ProcurementService struct {
	db           *gorm.DB
	poRepo       *repository.PORepository
	invRepo      *repository.InventoryRepository
	receiptRepo  *repository.ReceiptRepository
	supplierRepo *repository.SupplierRepository
	productRepo  *repository.ProductRepository
	activityRepo *repository.ActivityLogRepository
}

func NewProcurementService(
	db *gorm.DB,
	poRepo *repository.PORepository,
	invRepo *repository.InventoryRepository,
	receiptRepo *repository.ReceiptRepository,
	supplierRepo *repository.SupplierRepository,
	productRepo *repository.ProductRepository,
	activityRepo *repository.ActivityLogRepository,
) *ProcurementService {
	return &ProcurementService{
		db:           db,
		poRepo:       poRepo,
		invRepo:      invRepo,
		receiptRepo:  receiptRepo,
		supplierRepo: supplierRepo,
		productRepo:  productRepo,
		activityRepo: activityRepo,
	}
}

// ListPOs 获取采购订单列表
func (s *ProcurementService) ListPOs(ctx context.Context, params repository.POListParams) ([]entity.PurchaseOrder, int64, error) {
	return s.poRepo.FindAll(ctx, params)
}

// GetPO 获取采购订单详情
func (s *ProcurementService) GetPO(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	return s.poRepo.FindByID(ctx, id)
}

// ListReceipts 获取订单收货单列表
func (s *ProcurementService) ListReceipts(ctx context.Context, poID string) ([]entity.DeliveryReceipt, error) {
	if _, err := s.poRepo.FindByID(ctx, poID); err != nil {
		return nil, err
	}
	return s.receiptRepo.FindByOrder(ctx, poID)
}

// CreatePOItemInput 创建PO行项
type CreatePOItemInput struct {
	ProductID       string  `json:"product_id" binding:"required"`
	QuantityOrdered int     `json:"quantity_ordered" binding:"required,gt=0"`
	UnitCost        float64 `json:"unit_cost" binding:"required,gt=0"`
	Notes           string  `json:"notes"`
}

// CreatePORequest 创建采购订单请求
type CreatePORequest struct {
	SupplierID     string              `json:"supplier_id" binding:"required"`
	OrderDate      *time.Time          `json:"order_date" binding:"required"`
	ExpectedDate   *time.Time          `json:"expected_date"`
	DeliveryMethod string              `json:"delivery_method"`
	Notes          string              `json:"notes"`
	Items          []CreatePOItemInput `json:"items" binding:"required,min=1,dive"`
}

// CreatePO 创建采购订单。
// 下单即占用：每个商品的 quantity_on_order 在 draft 阶段就增加，
// 放弃的草稿必须通过 Cancel/Edit 释放占用。
func (s *ProcurementService) CreatePO(ctx context.Context, userID string, req *CreatePORequest) (*entity.PurchaseOrder, error) {
	supplier, err := s.supplierRepo.FindByID(ctx, req.SupplierID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: 供应商不存在", ErrValidation)
		}
		return nil, err
	}
	if !supplier.IsActive {
		return nil, fmt.Errorf("%w: 供应商已停用", ErrValidation)
	}

	productIDs := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.productRepo.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	for _, item := range req.Items {
		if _, ok := products[item.ProductID]; !ok {
			return nil, fmt.Errorf("%w: 商品不存在: %s", ErrValidation, item.ProductID)
		}
	}

	po := &entity.PurchaseOrder{
		ID:             uuid.New().String()[:32],
		SupplierID:     req.SupplierID,
		Status:         entity.POStatusDraft,
		OrderDate:      *req.OrderDate,
		ExpectedDate:   req.ExpectedDate,
		DeliveryMethod: req.DeliveryMethod,
		Notes:          req.Notes,
		CreatedBy:      userID,
	}

	for _, item := range req.Items {
		po.Items = append(po.Items, entity.PurchaseOrderItem{
			ID:              uuid.New().String()[:32],
			PurchaseOrderID: po.ID,
			ProductID:       item.ProductID,
			QuantityOrdered: item.QuantityOrdered,
			UnitCost:        item.UnitCost,
			TotalCost:       float64(item.QuantityOrdered) * item.UnitCost,
			Notes:           item.Notes,
		})
	}
	recalcTotals(po)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.poRepo.NextPONumber(tx, time.Now())
		if err != nil {
			return err
		}
		po.PONumber = number

		if err := tx.Create(po).Error; err != nil {
			return fmt.Errorf("创建采购订单失败: %w", err)
		}

		for _, item := range po.Items {
			inv, err := s.invRepo.LockOrCreateByProduct(tx, item.ProductID)
			if err != nil {
				return err
			}
			inv.QuantityOnOrder += item.QuantityOrdered
			if err := s.invRepo.Save(tx, inv); err != nil {
				return fmt.Errorf("更新在途数量失败: %w", err)
			}
		}

		return s.activityRepo.Append(tx, &entity.ActivityLog{
			EntityType: "purchase_order",
			EntityID:   po.ID,
			EntityCode: po.PONumber,
			Action:     "create",
			ToStatus:   entity.POStatusDraft,
			OperatorID: userID,
		})
	})
	if err != nil {
		return nil, err
	}
	return po, nil
}

// UpdatePORequest 编辑采购订单请求（行项整体替换）
type UpdatePORequest struct {
	ExpectedDate   *time.Time          `json:"expected_date"`
	DeliveryMethod *string             `json:"delivery_method"`
	Notes          *string             `json:"notes"`
	Items          []CreatePOItemInput `json:"items" binding:"required,min=1,dive"`
}

// UpdatePO 编辑采购订单：仅 draft/pending_approval 可编辑。
// 先回退旧行项的在途占用，整体替换行项后再按新行项占用。
func (s *ProcurementService) UpdatePO(ctx context.Context, id, userID string, req *UpdatePORequest) (*entity.PurchaseOrder, error) {
	productIDs := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.productRepo.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	for _, item := range req.Items {
		if _, ok := products[item.ProductID]; !ok {
			return nil, fmt.Errorf("%w: 商品不存在: %s", ErrValidation, item.ProductID)
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		po, err := s.poRepo.LockByID(tx, id)
		if err != nil {
			return err
		}
		if !entity.IsEditableStatus(po.Status) {
			return fmt.Errorf("%w: 当前状态 %s 不允许编辑", ErrInvalidStatus, po.Status)
		}

		// 回退旧行项的在途占用
		for _, item := range po.Items {
			inv, err := s.invRepo.LockOrCreateByProduct(tx, item.ProductID)
			if err != nil {
				return err
			}
			inv.QuantityOnOrder = maxInt(0, inv.QuantityOnOrder-item.QuantityOrdered)
			if err := s.invRepo.Save(tx, inv); err != nil {
				return err
			}
		}

		if err := tx.Where("purchase_order_id = ?", id).Delete(&entity.PurchaseOrderItem{}).Error; err != nil {
			return fmt.Errorf("删除旧行项失败: %w", err)
		}

		po.Items = nil
		for _, item := range req.Items {
			po.Items = append(po.Items, entity.PurchaseOrderItem{
				ID:              uuid.New().String()[:32],
				PurchaseOrderID: po.ID,
				ProductID:       item.ProductID,
				QuantityOrdered: item.QuantityOrdered,
				UnitCost:        item.UnitCost,
				TotalCost:       float64(item.QuantityOrdered) * item.UnitCost,
				Notes:           item.Notes,
			})
		}
		if err := tx.Create(&po.Items).Error; err != nil {
			return fmt.Errorf("创建新行项失败: %w", err)
		}

		// 按新行项重新占用
		for _, item := range po.Items {
			inv, err := s.invRepo.LockOrCreateByProduct(tx, item.ProductID)
			if err != nil {
				return err
			}
			inv.QuantityOnOrder += item.QuantityOrdered
			if err := s.invRepo.Save(tx, inv); err != nil {
				return err
			}
		}

		if req.ExpectedDate != nil {
			po.ExpectedDate = req.ExpectedDate
		}
		if req.DeliveryMethod != nil {
			po.DeliveryMethod = *req.DeliveryMethod
		}
		if req.Notes != nil {
			po.Notes = *req.Notes
		}
		recalcTotals(po)

		if err := tx.Omit("Items").Save(po).Error; err != nil {
			return fmt.Errorf("更新采购订单失败: %w", err)
		}

		return s.activityRepo.Append(tx, &entity.ActivityLog{
			EntityType: "purchase_order",
			EntityID:   po.ID,
			EntityCode: po.PONumber,
			Action:     "edit",
			FromStatus: po.Status,
			ToStatus:   po.Status,
			OperatorID: userID,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.poRepo.FindByID(ctx, id)
}

// SubmitPO 提交审批：draft → pending_approval
func (s *ProcurementService) SubmitPO(ctx context.Context, id, userID string) (*entity.PurchaseOrder, error) {
	return s.transition(ctx, id, userID, "submit", func(po *entity.PurchaseOrder) error {
		if po.Status != entity.POStatusDraft {
			return fmt.Errorf("%w: 当前状态 %s 不允许提交审批", ErrInvalidStatus, po.Status)
		}
		po.Status = entity.POStatusPendingApproval
		return nil
	})
}

// ApprovePORequest 审批请求
type ApprovePORequest struct {
	Notes string `json:"notes"`
}

// ApprovePO 审批：pending_approval → approved
func (s *ProcurementService) ApprovePO(ctx context.Context, id, userID string, req *ApprovePORequest) (*entity.PurchaseOrder, error) {
	return s.transition(ctx, id, userID, "approve", func(po *entity.PurchaseOrder) error {
		if po.Status != entity.POStatusPendingApproval {
			return fmt.Errorf("%w: 当前状态 %s 不允许审批", ErrInvalidStatus, po.Status)
		}
		now := time.Now()
		po.Status = entity.POStatusApproved
		po.ApprovedBy = &userID
		po.ApprovedAt = &now
		po.ApprovalNotes = req.Notes
		return nil
	})
}

// SendPORequest 发送请求
type SendPORequest struct {
	SentVia string `json:"sent_via" binding:"required"`
}

// SendPO 发送给供应商：approved → sent
func (s *ProcurementService) SendPO(ctx context.Context, id, userID string, req *SendPORequest) (*entity.PurchaseOrder, error) {
	return s.transition(ctx, id, userID, "send", func(po *entity.PurchaseOrder) error {
		if po.Status != entity.POStatusApproved {
			return fmt.Errorf("%w: 当前状态 %s 不允许发送", ErrInvalidStatus, po.Status)
		}
		now := time.Now()
		po.Status = entity.POStatusSent
		po.SentVia = req.SentVia
		po.SentAt = &now
		return nil
	})
}

// HoldPORequest 暂停请求
type HoldPORequest struct {
	Reason string `json:"reason"`
}

// HoldPO 暂停订单：任意非终态 → on_hold
func (s *ProcurementService) HoldPO(ctx context.Context, id, userID string, req *HoldPORequest) (*entity.PurchaseOrder, error) {
	return s.transition(ctx, id, userID, "hold", func(po *entity.PurchaseOrder) error {
		if entity.IsTerminalStatus(po.Status) {
			return fmt.Errorf("%w: 当前状态 %s 不允许暂停", ErrInvalidStatus, po.Status)
		}
		po.Status = entity.POStatusOnHold
		if req.Reason != "" {
			po.Notes = appendNote(po.Notes, "[暂停] "+req.Reason)
		}
		return nil
	})
}

// ReceiveItemInput 收货行
type ReceiveItemInput struct {
	ItemID   string `json:"item_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
}

// ReceivePORequest 收货请求
type ReceivePORequest struct {
	ReceiptNumber    string             `json:"receipt_number"`
	DiscrepancyNotes string             `json:"discrepancy_notes"`
	Items            []ReceiveItemInput `json:"items" binding:"required,min=1,dive"`
}

// ReceivePO 收货：sent/partial 状态下按行收货。
// 每行：quantity_received 累加，on_hand 增加，on_order 扣减（不为负），
// 并追加一条带 before/after 的流水；全部行收满则订单转 received，
// 否则 partial。每次收货生成一条 pending 状态收货单。
func (s *ProcurementService) ReceivePO(ctx context.Context, id, userID string, req *ReceivePORequest) (*entity.PurchaseOrder, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		po, err := s.poRepo.LockByID(tx, id)
		if err != nil {
			return err
		}
		if po.Status != entity.POStatusSent && po.Status != entity.POStatusPartial {
			return fmt.Errorf("%w: 当前状态 %s 不允许收货", ErrInvalidStatus, po.Status)
		}

		itemsByID := make(map[string]*entity.PurchaseOrderItem, len(po.Items))
		for i := range po.Items {
			itemsByID[po.Items[i].ID] = &po.Items[i]
		}

		now := time.Now()
		for _, line := range req.Items {
			item, ok := itemsByID[line.ItemID]
			if !ok {
				return fmt.Errorf("%w: 行项不属于该订单: %s", ErrValidation, line.ItemID)
			}

			item.QuantityReceived += line.Quantity
			if err := tx.Save(item).Error; err != nil {
				return fmt.Errorf("更新行项收货数量失败: %w", err)
			}

			inv, err := s.invRepo.LockOrCreateByProduct(tx, item.ProductID)
			if err != nil {
				return err
			}
			before := inv.QuantityOnHand
			inv.QuantityOnHand += line.Quantity
			inv.QuantityOnOrder = maxInt(0, inv.QuantityOnOrder-line.Quantity)
			if err := s.invRepo.Save(tx, inv); err != nil {
				return fmt.Errorf("更新库存失败: %w", err)
			}

			if err := s.invRepo.AppendTransaction(tx, &entity.InventoryTransaction{
				ID:              uuid.New().String()[:32],
				ProductID:       item.ProductID,
				TransactionType: entity.TxTypePurchaseReceive,
				Quantity:        line.Quantity,
				QuantityBefore:  before,
				QuantityAfter:   inv.QuantityOnHand,
				ReferenceType:   "purchase_order",
				ReferenceID:     po.ID,
				Notes:           po.PONumber,
				CreatedBy:       userID,
				CreatedAt:       now,
			}); err != nil {
				return fmt.Errorf("写入库存流水失败: %w", err)
			}
		}

		// 全部行收满则完成
		totalOrdered, totalReceived := 0, 0
		for _, item := range po.Items {
			totalOrdered += item.QuantityOrdered
			totalReceived += item.QuantityReceived
		}
		fromStatus := po.Status
		if totalReceived >= totalOrdered {
			po.Status = entity.POStatusReceived
			po.ReceivedDate = &now
		} else {
			po.Status = entity.POStatusPartial
		}
		if err := tx.Omit("Items").Save(po).Error; err != nil {
			return fmt.Errorf("更新采购订单失败: %w", err)
		}

		receiptNumber := req.ReceiptNumber
		if receiptNumber == "" {
			receiptNumber, err = s.receiptRepo.NextReceiptNumber(tx, now)
			if err != nil {
				return fmt.Errorf("生成收货单号失败: %w", err)
			}
		}
		receipt := &entity.DeliveryReceipt{
			ID:               uuid.New().String()[:32],
			PurchaseOrderID:  po.ID,
			ReceiptNumber:    receiptNumber,
			ReceivedDate:     now,
			ReceivedBy:       userID,
			DiscrepancyNotes: req.DiscrepancyNotes,
			Status:           entity.ReceiptStatusPending,
		}
		if err := s.receiptRepo.Create(tx, receipt); err != nil {
			return fmt.Errorf("创建收货单失败: %w", err)
		}

		return s.activityRepo.Append(tx, &entity.ActivityLog{
			EntityType: "purchase_order",
			EntityID:   po.ID,
			EntityCode: po.PONumber,
			Action:     "receive",
			FromStatus: fromStatus,
			ToStatus:   po.Status,
			Content:    receiptNumber,
			OperatorID: userID,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.poRepo.FindByID(ctx, id)
}

// CancelPORequest 取消请求
type CancelPORequest struct {
	Reason string `json:"reason"`
}

// CancelPO 取消订单：终态之外均可取消；未收货的剩余数量释放在途占用。
func (s *ProcurementService) CancelPO(ctx context.Context, id, userID string, req *CancelPORequest) (*entity.PurchaseOrder, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		po, err := s.poRepo.LockByID(tx, id)
		if err != nil {
			return err
		}
		if !entity.CanTransition(po.Status, entity.POStatusCancelled) {
			return fmt.Errorf("%w: 当前状态 %s 不允许取消", ErrInvalidStatus, po.Status)
		}

		for _, item := range po.Items {
			remainder := item.QuantityOrdered - item.QuantityReceived
			if remainder <= 0 {
				continue
			}
			inv, err := s.invRepo.LockOrCreateByProduct(tx, item.ProductID)
			if err != nil {
				return err
			}
			inv.QuantityOnOrder = maxInt(0, inv.QuantityOnOrder-remainder)
			if err := s.invRepo.Save(tx, inv); err != nil {
				return err
			}
		}

		fromStatus := po.Status
		po.Status = entity.POStatusCancelled
		if req.Reason != "" {
			po.Notes = appendNote(po.Notes, "[取消] "+req.Reason)
		}
		if err := tx.Omit("Items").Save(po).Error; err != nil {
			return fmt.Errorf("更新采购订单失败: %w", err)
		}

		return s.activityRepo.Append(tx, &entity.ActivityLog{
			EntityType: "purchase_order",
			EntityID:   po.ID,
			EntityCode: po.PONumber,
			Action:     "cancel",
			FromStatus: fromStatus,
			ToStatus:   entity.POStatusCancelled,
			Content:    req.Reason,
			OperatorID: userID,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.poRepo.FindByID(ctx, id)
}

// FileReceipt 归档收货单：订单标记 delivery_receipt_filed，
// 名下收货单全部转 filed。可重复调用。
func (s *ProcurementService) FileReceipt(ctx context.Context, id, userID string) (*entity.PurchaseOrder, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		po, err := s.poRepo.LockByID(tx, id)
		if err != nil {
			return err
		}

		count, err := s.receiptRepo.CountByOrder(tx, po.ID)
		if err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: 订单没有收货单可归档", ErrValidation)
		}

		now := time.Now()
		po.DeliveryReceiptFiled = true
		po.FiledBy = &userID
		po.FiledAt = &now
		if err := tx.Omit("Items").Save(po).Error; err != nil {
			return fmt.Errorf("更新采购订单失败: %w", err)
		}

		if err := s.receiptRepo.FileByOrder(tx, po.ID, userID, now); err != nil {
			return fmt.Errorf("归档收货单失败: %w", err)
		}

		return s.activityRepo.Append(tx, &entity.ActivityLog{
			EntityType: "purchase_order",
			EntityID:   po.ID,
			EntityCode: po.PONumber,
			Action:     "file",
			FromStatus: po.Status,
			ToStatus:   po.Status,
			OperatorID: userID,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.poRepo.FindByID(ctx, id)
}

// transition 纯状态迁移（不触及库存）：锁订单头，执行变更，写操作日志。
func (s *ProcurementService) transition(ctx context.Context, id, userID, action string, mutate func(po *entity.PurchaseOrder) error) (*entity.PurchaseOrder, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		po, err := s.poRepo.LockByID(tx, id)
		if err != nil {
			return err
		}
		fromStatus := po.Status
		if err := mutate(po); err != nil {
			return err
		}
		if err := tx.Omit("Items").Save(po).Error; err != nil {
			return fmt.Errorf("更新采购订单失败: %w", err)
		}
		return s.activityRepo.Append(tx, &entity.ActivityLog{
			EntityType: "purchase_order",
			EntityID:   po.ID,
			EntityCode: po.PONumber,
			Action:     action,
			FromStatus: fromStatus,
			ToStatus:   po.Status,
			OperatorID: userID,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.poRepo.FindByID(ctx, id)
}

// recalcTotals 重算订单金额：subtotal = Σ(qty×cost)，税率目前为0
func recalcTotals(po *entity.PurchaseOrder) {
	var subtotal float64
	for _, item := range po.Items {
		subtotal += item.TotalCost
	}
	po.Subtotal = subtotal
	po.TaxAmount = 0
	po.TotalAmount = po.Subtotal + po.TaxAmount
}

func appendNote(notes, line string) string {
	if notes == "" {
		return line
	}
	return strings.TrimSpace(notes) + "\n" + line
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
