package models

import (
	"context"
	"fmt"
	"slices"
	"time"

	"bitbucket.org/mmdatafocus/taminot_backend/config"
	"bitbucket.org/mmdatafocus/taminot_backend/utils"
	"gorm.io/gorm"
)

type Product struct {
	ID        int              `gorm:"primary_key" json:"id"`
	Name      string           `gorm:"size:100;not null" json:"name" binding:"required"`
	Unit      string           `gorm:"size:20;not null" json:"unit" binding:"required"`
	Variants  []ProductVariant `gorm:"foreignkey:ProductId" json:"variants"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProductVariant is one sub-classification of a product (e.g. 0.250).
// Position preserves the order variants were entered in.
type ProductVariant struct {
	ID        int    `gorm:"primary_key" json:"id"`
	ProductId int    `gorm:"index;not null" json:"product_id"`
	Name      string `gorm:"size:100;not null" json:"name"`
	Position  int    `gorm:"not null;default:0" json:"position"`
}

type NewProduct struct {
	Name     string   `json:"name" binding:"required"`
	Unit     string   `json:"unit" binding:"required"`
	Variants []string `json:"variants"`
}

// VariantNames returns the variant names in entry order.
func (p Product) VariantNames() []string {
	names := make([]string, 0, len(p.Variants))
	for _, v := range p.Variants {
		names = append(names, v.Name)
	}
	return names
}

// HasVariant reports whether the given normalized variant is valid for this
// product. Variant-less products accept only the sentinel.
func (p Product) HasVariant(variant string) bool {
	if len(p.Variants) == 0 {
		return variant == DefaultVariant
	}
	return slices.Contains(p.VariantNames(), variant)
}

func (input *NewProduct) validate() error {
	seen := map[string]struct{}{}
	for _, v := range input.Variants {
		if v == "" {
			return fmt.Errorf("%w: variant name cannot be empty", utils.ErrInvalidInput)
		}
		if _, dup := seen[v]; dup {
			return fmt.Errorf("%w: duplicate variant %q", utils.ErrInvalidInput, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

func mapVariantInput(productId int, variants []string) []ProductVariant {
	rows := make([]ProductVariant, 0, len(variants))
	for i, name := range variants {
		rows = append(rows, ProductVariant{
			ProductId: productId,
			Name:      name,
			Position:  i,
		})
	}
	return rows
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	product := Product{
		Name:     input.Name,
		Unit:     input.Unit,
		Variants: mapVariantInput(0, input.Variants),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {
	product, err := utils.FetchModel[Product](ctx, id, "Variants")
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	product.Name = input.Name
	product.Unit = input.Unit
	if err := tx.Omit("Variants").Save(product).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	// replace variant rows wholesale, preserving entry order
	if err := tx.Where("product_id = ?", id).Delete(&ProductVariant{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	rows := mapVariantInput(id, input.Variants)
	if len(rows) > 0 {
		if err := tx.Create(&rows).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	product.Variants = rows
	return product, nil
}

func DeleteProduct(ctx context.Context, id int) (*Product, error) {
	product, err := utils.FetchModel[Product](ctx, id, "Variants")
	if err != nil {
		return nil, err
	}

	// Products with ledger history stay; deleting them would orphan the
	// movements their balances fold from.
	count, err := utils.ResourceCountWhere[StockTransaction](ctx, "product_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: product %q has stock movements", utils.ErrInvalidInput, product.Name)
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := tx.Where("product_id = ?", id).Delete(&ProductVariant{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Delete(&Product{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	return product, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	return utils.FetchModel[Product](ctx, id, "Variants")
}

func GetProducts(ctx context.Context) ([]*Product, error) {
	db := config.GetDB()
	var products []*Product
	err := db.WithContext(ctx).Preload("Variants", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC")
	}).Order("id ASC").Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}
