package service

import (
	"context"

	"github.com/bitfantasy/nimo-ims/internal/ims/entity"
	"github.com/bitfantasy/nimo-ims/internal/ims/repository"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Procurement *ProcurementService
	Inventory   *InventoryService
	Stats       *StatsService
	Export      *ExportService
	Attachment  *AttachmentService
	Activity    *ActivityService
}

// NewServices 创建服务集合
func NewServices(db *gorm.DB, repos *repository.Repositories, rdb *redis.Client, minioClient *minio.Client, bucketName string, logger *zap.Logger) *Services {
	return &Services{
		Procurement: NewProcurementService(db, repos.PO, repos.Inventory, repos.Receipt, repos.Supplier, repos.Product, repos.Activity),
		Inventory:   NewInventoryService(db, repos.Inventory, repos.Product),
		Stats:       NewStatsService(repos.PO, rdb, logger),
		Export:      NewExportService(repos.PO),
		Attachment:  NewAttachmentService(repos.Receipt, minioClient, bucketName),
		Activity:    NewActivityService(repos.Activity),
	}
}

// ActivityService 操作日志服务
type ActivityService struct {
	repo *repository.ActivityLogRepository
}

func NewActivityService(repo *repository.ActivityLogRepository) *ActivityService {
	return &ActivityService{repo: repo}
}

// ListByEntity 获取实体的操作日志（按时间倒序）
func (s *ActivityService) ListByEntity(ctx context.Context, entityType, entityID string, page, limit int) ([]entity.ActivityLog, int64, error) {
	return s.repo.FindByEntity(ctx, entityType, entityID, page, limit)
}
