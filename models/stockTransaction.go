package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/taminot_backend/config"
	"bitbucket.org/mmdatafocus/taminot_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockTransaction is one signed movement in the append-only ledger log.
// Rows are never mutated or deleted in normal operation; balances are
// always derived by folding them (stockLedger.go).
type StockTransaction struct {
	ID          string          `gorm:"size:36;primary_key" json:"id"` // uuid
	OrgId       string          `gorm:"index:idx_stock_org_product,priority:1;size:36;not null" json:"org_id"`
	ProductId   int             `gorm:"index:idx_stock_org_product,priority:2;not null" json:"product_id"`
	ProductName string          `gorm:"size:100" json:"product_name"`
	Variant     string          `gorm:"size:100;not null;default:'default'" json:"variant"`
	Qty         int64           `gorm:"not null" json:"qty"`
	Type        TransactionType `gorm:"type:enum('IN','OUT');not null" json:"type"`
	Comment     string          `gorm:"type:text" json:"comment"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

type NewStockEntry struct {
	ProductId int    `json:"product_id" binding:"required"`
	Variant   string `json:"variant"`
	Qty       int64  `json:"qty" binding:"required"`
	Comment   string `json:"comment"`
}

func (input *NewStockEntry) validate(ctx context.Context) (*Product, error) {
	if input.Qty <= 0 {
		return nil, fmt.Errorf("%w: qty must be a positive integer", utils.ErrInvalidInput)
	}
	product, err := utils.FetchModel[Product](ctx, input.ProductId, "Variants")
	if err != nil {
		return nil, err
	}
	if !product.HasVariant(NormalizeVariant(input.Variant)) {
		return nil, fmt.Errorf("%w: product %q has no variant %q", utils.ErrInvalidInput, product.Name, input.Variant)
	}
	return product, nil
}

// appendStockTransaction writes one ledger row inside the caller's DB
// transaction. Callers that must couple the append with other writes
// (requisition approval) pass their own tx.
func appendStockTransaction(tx *gorm.DB, orgId string, product *Product, variant string, qty int64, txnType TransactionType, comment string) (*StockTransaction, error) {
	record := StockTransaction{
		ID:          uuid.NewString(),
		OrgId:       orgId,
		ProductId:   product.ID,
		ProductName: product.Name,
		Variant:     NormalizeVariant(variant),
		Qty:         qty,
		Type:        txnType,
		Comment:     comment,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// RecordConsumption appends an OUT movement against the calling
// organization's own ledger. No balance floor is enforced: the ledger may
// go negative (see stockLedger.go).
func RecordConsumption(ctx context.Context, orgId string, input *NewStockEntry) (*StockTransaction, error) {
	if orgId == "" || orgId == CentralOrgId {
		return nil, fmt.Errorf("%w: consumption requires an organization scope", utils.ErrInvalidInput)
	}
	product, err := input.validate(ctx)
	if err != nil {
		return nil, err
	}

	comment := input.Comment
	if comment == "" {
		comment = "Ishlatildi (Chiqim)"
	}

	db := config.GetDB()
	var record *StockTransaction
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err = appendStockTransaction(tx, orgId, product, input.Variant, input.Qty, TransactionTypeOut, comment)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// RecordCentralIntake appends an IN movement to the central warehouse
// ledger. Administrator only.
func RecordCentralIntake(ctx context.Context, input *NewStockEntry) (*StockTransaction, error) {
	if !utils.GetIsAdminFromContext(ctx) {
		return nil, fmt.Errorf("%w: central intake is administrator-only", utils.ErrInvalidInput)
	}
	product, err := input.validate(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var record *StockTransaction
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err = appendStockTransaction(tx, CentralOrgId, product, input.Variant, input.Qty, TransactionTypeIn, input.Comment)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetStockTransactions returns the scope's movements, newest first.
func GetStockTransactions(ctx context.Context, orgId string) ([]*StockTransaction, error) {
	db := config.GetDB()
	var txns []*StockTransaction
	err := db.WithContext(ctx).
		Where("org_id = ?", orgId).
		Order("created_at DESC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// GetAllStockTransactions returns every movement across all scopes
// (backup snapshots, admin overview).
func GetAllStockTransactions(ctx context.Context) ([]*StockTransaction, error) {
	db := config.GetDB()
	var txns []*StockTransaction
	err := db.WithContext(ctx).Order("created_at ASC").Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}
