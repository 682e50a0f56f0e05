package models

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/taminot_backend/config"
	"bitbucket.org/mmdatafocus/taminot_backend/utils"
	"gorm.io/gorm"
)

// Requisition is an organization's request for a product, decided by the
// administrator. Org/product names and the unit are denormalized at
// creation so listings and reports survive later renames.
type Requisition struct {
	ID          int               `gorm:"primary_key" json:"id"`
	OrgId       string            `gorm:"index;size:36;not null" json:"org_id"`
	OrgName     string            `gorm:"size:100" json:"org_name"`
	ProductId   int               `gorm:"index;not null" json:"product_id"`
	ProductName string            `gorm:"size:100" json:"product_name"`
	Unit        string            `gorm:"size:20" json:"unit"`
	Variant     string            `gorm:"size:100;not null;default:'default'" json:"variant"`
	BloodGroup  string            `gorm:"size:10" json:"blood_group"`
	PatientName string            `gorm:"size:100" json:"patient_name"`
	Qty         int64             `gorm:"not null" json:"qty"`
	Comment     string            `gorm:"type:text" json:"comment"`
	Status      RequisitionStatus `gorm:"type:enum('PENDING','APPROVED','REJECTED');default:PENDING" json:"status"`
	CreatedAt   time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRequisition struct {
	ProductId   int    `json:"product_id" binding:"required"`
	Variant     string `json:"variant"`
	BloodGroup  string `json:"blood_group"`
	PatientName string `json:"patient_name"`
	Qty         int64  `json:"qty" binding:"required"`
	Comment     string `json:"comment"`
}

func (input *NewRequisition) validate(ctx context.Context) (*Product, error) {
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

// CreateRequisition files a new PENDING requisition for the calling
// organization and notifies the administrator channel (fire and forget).
func CreateRequisition(ctx context.Context, input *NewRequisition) (*Requisition, error) {
	if utils.GetIsAdminFromContext(ctx) {
		return nil, fmt.Errorf("%w: the central warehouse does not file requisitions", utils.ErrInvalidInput)
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: user id is required", utils.ErrInvalidInput)
	}
	orgName, _ := utils.GetUserNameFromContext(ctx)

	product, err := input.validate(ctx)
	if err != nil {
		return nil, err
	}

	requisition := Requisition{
		OrgId:       strconv.Itoa(userId),
		OrgName:     orgName,
		ProductId:   product.ID,
		ProductName: product.Name,
		Unit:        product.Unit,
		Variant:     NormalizeVariant(input.Variant),
		BloodGroup:  input.BloodGroup,
		PatientName: input.PatientName,
		Qty:         input.Qty,
		Comment:     input.Comment,
		Status:      RequisitionStatusPending,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&requisition).Error; err != nil {
		return nil, err
	}

	notifyRequisitionCreated(ctx, &requisition)
	return &requisition, nil
}

// UpdateRequisition overwrites the mutable fields in any status. It never
// retroactively adjusts a stock movement already emitted for an approved
// requisition; the audit history row keeps the before/after for operators.
func UpdateRequisition(ctx context.Context, id int, input *NewRequisition) (*Requisition, error) {
	requisition, err := utils.FetchModel[Requisition](ctx, id)
	if err != nil {
		return nil, err
	}
	product, err := input.validate(ctx)
	if err != nil {
		return nil, err
	}

	before := *requisition

	requisition.ProductId = product.ID
	requisition.ProductName = product.Name
	requisition.Unit = product.Unit
	requisition.Variant = NormalizeVariant(input.Variant)
	requisition.BloodGroup = input.BloodGroup
	requisition.PatientName = input.PatientName
	requisition.Qty = input.Qty
	requisition.Comment = input.Comment

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(requisition).Error; err != nil {
			return err
		}
		description := fmt.Sprintf("Requisition #%d edited (status %s).", requisition.ID, requisition.Status)
		return createHistory(tx, "edit", requisition.ID, "requisitions", before, requisition, description)
	})
	if err != nil {
		return nil, err
	}
	return requisition, nil
}

// DeleteRequisition removes a requisition permanently. Stock movements
// already emitted for it are left untouched.
func DeleteRequisition(ctx context.Context, id int) (*Requisition, error) {
	requisition, err := utils.FetchModel[Requisition](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Requisition{}, id).Error; err != nil {
			return err
		}
		description := fmt.Sprintf("Requisition #%d deleted (status %s).", requisition.ID, requisition.Status)
		return createHistory(tx, "delete", requisition.ID, "requisitions", requisition, nil, description)
	})
	if err != nil {
		return nil, err
	}
	return requisition, nil
}

func GetRequisition(ctx context.Context, id int) (*Requisition, error) {
	return utils.FetchModel[Requisition](ctx, id)
}

// GetRequisitions lists requisitions newest first; orgId narrows the list
// to one organization ("" means all, administrator view).
func GetRequisitions(ctx context.Context, orgId string, status *RequisitionStatus) ([]*Requisition, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Requisition{})
	if orgId != "" {
		dbCtx = dbCtx.Where("org_id = ?", orgId)
	}
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	var requisitions []*Requisition
	if err := dbCtx.Order("created_at DESC").Find(&requisitions).Error; err != nil {
		return nil, err
	}
	return requisitions, nil
}
