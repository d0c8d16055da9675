package entity

import "time"

// PurchaseOrder 采购订单
type PurchaseOrder struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	PONumber   string `json:"po_number" gorm:"size:32;uniqueIndex;not null"`
	SupplierID string `json:"supplier_id" gorm:"size:32;not null;index"`
	Status     string `json:"status" gorm:"size:20;not null;default:draft"`

	// 日期
	OrderDate    time.Time  `json:"order_date" gorm:"not null"`
	ExpectedDate *time.Time `json:"expected_date"`
	ReceivedDate *time.Time `json:"received_date"`

	// 金额（税率目前固定为0，total = subtotal + tax）
	Subtotal    float64 `json:"subtotal" gorm:"type:decimal(15,2);default:0"`
	TaxAmount   float64 `json:"tax_amount" gorm:"type:decimal(15,2);default:0"`
	TotalAmount float64 `json:"total_amount" gorm:"type:decimal(15,2);default:0"`

	DeliveryMethod string `json:"delivery_method" gorm:"size:50"`
	Notes          string `json:"notes" gorm:"type:text"`

	// 发送
	SentVia string     `json:"sent_via" gorm:"size:50"`
	SentAt  *time.Time `json:"sent_at"`

	// 管理
	CreatedBy     string     `json:"created_by" gorm:"size:32;not null"`
	ApprovedBy    *string    `json:"approved_by" gorm:"size:32"`
	ApprovedAt    *time.Time `json:"approved_at"`
	ApprovalNotes string     `json:"approval_notes" gorm:"type:text"`

	// 收货单归档
	DeliveryReceiptFiled bool       `json:"delivery_receipt_filed" gorm:"default:false"`
	FiledBy              *string    `json:"filed_by" gorm:"size:32"`
	FiledAt              *time.Time `json:"filed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	Items    []PurchaseOrderItem `json:"items,omitempty" gorm:"foreignKey:PurchaseOrderID"`
	Supplier *Supplier           `json:"supplier,omitempty" gorm:"foreignKey:SupplierID"`
}

func (PurchaseOrder) TableName() string {
	return "purchase_orders"
}

// PO状态
const (
	POStatusDraft           = "draft"
	POStatusPendingApproval = "pending_approval"
	POStatusApproved        = "approved"
	POStatusSent            = "sent"
	POStatusPartial         = "partial"
	POStatusReceived        = "received"
	POStatusOnHold          = "on_hold"
	POStatusCancelled       = "cancelled"
)

// ValidPOTransitions PO状态机：每个状态允许迁移到的目标状态。
// received 和 cancelled 为终态；on_hold 和 cancelled 可从任何非终态进入。
var ValidPOTransitions = map[string][]string{
	POStatusDraft:           {POStatusPendingApproval, POStatusOnHold, POStatusCancelled},
	POStatusPendingApproval: {POStatusApproved, POStatusOnHold, POStatusCancelled},
	POStatusApproved:        {POStatusSent, POStatusOnHold, POStatusCancelled},
	POStatusSent:            {POStatusPartial, POStatusReceived, POStatusOnHold, POStatusCancelled},
	POStatusPartial:         {POStatusPartial, POStatusReceived, POStatusOnHold, POStatusCancelled},
	POStatusOnHold:          {POStatusOnHold, POStatusCancelled},
	POStatusReceived:        {},
	POStatusCancelled:       {},
}

// CanTransition 判断状态迁移是否合法
func CanTransition(from, to string) bool {
	for _, s := range ValidPOTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus 是否终态
func IsTerminalStatus(status string) bool {
	return status == POStatusReceived || status == POStatusCancelled
}

// IsEditableStatus 是否允许编辑行项
func IsEditableStatus(status string) bool {
	return status == POStatusDraft || status == POStatusPendingApproval
}

// PurchaseOrderItem PO行项
type PurchaseOrderItem struct {
	ID              string `json:"id" gorm:"primaryKey;size:32"`
	PurchaseOrderID string `json:"purchase_order_id" gorm:"size:32;not null;index"`
	ProductID       string `json:"product_id" gorm:"size:32;not null;index"`

	QuantityOrdered  int     `json:"quantity_ordered" gorm:"not null"`
	QuantityReceived int     `json:"quantity_received" gorm:"not null;default:0"`
	UnitCost         float64 `json:"unit_cost" gorm:"type:decimal(12,4);not null"`
	TotalCost        float64 `json:"total_cost" gorm:"type:decimal(15,2);not null"`

	Notes     string    `json:"notes" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}

func (PurchaseOrderItem) TableName() string {
	return "purchase_order_items"
}

// POSequence 单号序列（按年），单号在事务内原子分配
type POSequence struct {
	Year    string `gorm:"primaryKey;size:4"`
	LastSeq int    `gorm:"not null;default:0"`
}

func (POSequence) TableName() string {
	return "po_sequences"
}
