package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-ims/internal/ims/entity"
	"gorm.io/gorm"
)

// ProductRepository 商品仓库（只读查询）
type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// FindByID 根据ID查找商品
func (r *ProductRepository) FindByID(ctx context.Context, id string) (*entity.Product, error) {
	var product entity.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

// FindByIDs 批量查找商品
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]entity.Product, error) {
	var products []entity.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	result := make(map[string]entity.Product, len(products))
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}
