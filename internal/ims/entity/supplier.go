package entity

import "time"

// Supplier 供应商（由外部系统维护，本服务只读引用）
type Supplier struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	Code        string    `json:"code" gorm:"size:32;uniqueIndex;not null"`
	Name        string    `json:"name" gorm:"size:200;not null"`
	ContactName string    `json:"contact_name" gorm:"size:100"`
	Phone       string    `json:"phone" gorm:"size:50"`
	Email       string    `json:"email" gorm:"size:100"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Supplier) TableName() string {
	return "suppliers"
}
