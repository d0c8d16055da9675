package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/bitfantasy/nimo-ims/internal/ims/entity"
	"github.com/bitfantasy/nimo-ims/internal/ims/repository"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// AttachmentService 收货单附件服务：送货单扫描件存MinIO。
// minioClient 为 nil 时（未配置对象存储）上传/下载返回错误，其余功能不受影响。
type AttachmentService struct {
	receiptRepo *repository.ReceiptRepository
	minioClient *minio.Client
	bucketName  string
}

func NewAttachmentService(receiptRepo *repository.ReceiptRepository, minioClient *minio.Client, bucketName string) *AttachmentService {
	return &AttachmentService{
		receiptRepo: receiptRepo,
		minioClient: minioClient,
		bucketName:  bucketName,
	}
}

// Upload 上传收货单扫描件。已有附件时覆盖记录（旧对象保留在存储中）。
func (s *AttachmentService) Upload(ctx context.Context, receiptID string, reader io.Reader, fileName string, fileSize int64, contentType string) (*entity.DeliveryReceipt, error) {
	receipt, err := s.receiptRepo.FindByID(ctx, receiptID)
	if err != nil {
		return nil, err
	}

	if s.minioClient == nil {
		return nil, fmt.Errorf("storage not configured")
	}

	objectName := fmt.Sprintf("receipts/%s/%s%s", time.Now().Format("2006/01/02"), uuid.New().String()[:8], filepath.Ext(fileName))
	_, err = s.minioClient.PutObject(ctx, s.bucketName, objectName, reader, fileSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("上传附件失败: %w", err)
	}

	receipt.AttachmentName = fileName
	receipt.AttachmentPath = objectName
	receipt.AttachmentSize = fileSize
	receipt.AttachmentType = contentType
	if err := s.receiptRepo.Update(ctx, receipt); err != nil {
		return nil, fmt.Errorf("更新收货单失败: %w", err)
	}

	return receipt, nil
}

// Download 下载收货单扫描件
func (s *AttachmentService) Download(ctx context.Context, receiptID string) (io.ReadCloser, *entity.DeliveryReceipt, error) {
	receipt, err := s.receiptRepo.FindByID(ctx, receiptID)
	if err != nil {
		return nil, nil, err
	}
	if receipt.AttachmentPath == "" {
		return nil, nil, fmt.Errorf("%w: 收货单没有附件", ErrValidation)
	}

	if s.minioClient == nil {
		return nil, receipt, fmt.Errorf("storage not configured")
	}

	object, err := s.minioClient.GetObject(ctx, s.bucketName, receipt.AttachmentPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("读取附件失败: %w", err)
	}
	return object, receipt, nil
}
