package entity

import "time"

// 收货单状态
const (
	ReceiptStatusPending     = "pending"
	ReceiptStatusVerified    = "verified"
	ReceiptStatusFiled       = "filed"
	ReceiptStatusDiscrepancy = "discrepancy"
)

// DeliveryReceipt 收货单（一次收货事件一条，部分收货会累计多条）
type DeliveryReceipt struct {
	ID              string `json:"id" gorm:"primaryKey;size:32"`
	PurchaseOrderID string `json:"purchase_order_id" gorm:"size:32;not null;index"`
	ReceiptNumber   string `json:"receipt_number" gorm:"size:50"`

	ReceivedDate time.Time `json:"received_date" gorm:"not null"`
	ReceivedBy   string    `json:"received_by" gorm:"size:32;not null"`

	ItemsVerified    bool   `json:"items_verified" gorm:"default:false"`
	DiscrepancyNotes string `json:"discrepancy_notes" gorm:"type:text"`
	Status           string `json:"status" gorm:"size:20;not null;default:pending"`

	FiledBy *string    `json:"filed_by" gorm:"size:32"`
	FiledAt *time.Time `json:"filed_at"`

	// 扫描件（送货单照片/回执），存MinIO
	AttachmentName string `json:"attachment_name" gorm:"size:255"`
	AttachmentPath string `json:"attachment_path" gorm:"size:500"`
	AttachmentSize int64  `json:"attachment_size"`
	AttachmentType string `json:"attachment_type" gorm:"size:100"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DeliveryReceipt) TableName() string {
	return "delivery_receipts"
}

// ReceiptSequence 收货单号序列（按日），单号在事务内原子分配
type ReceiptSequence struct {
	Day     string `gorm:"primaryKey;size:8"`
	LastSeq int    `gorm:"not null;default:0"`
}

func (ReceiptSequence) TableName() string {
	return "receipt_sequences"
}
