package models

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/taminot_backend/config"
	"bitbucket.org/mmdatafocus/taminot_backend/utils"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

type StatusUpdateInput struct {
	Status RequisitionStatus `json:"status" binding:"required"`
}

// UpdateRequisitionStatus decides a pending requisition. Approval flips the
// status and appends the matching IN stock movement for the requesting
// organization in one database transaction, so either both land or neither
// does. A per-org lock serializes concurrent decisions touching the same
// organization's ledger.
func UpdateRequisitionStatus(ctx context.Context, id int, input *StatusUpdateInput) (*Requisition, error) {
	if isAdmin := utils.GetIsAdminFromContext(ctx); !isAdmin {
		return nil, fmt.Errorf("%w: only the administrator can decide requisitions", utils.ErrInvalidInput)
	}
	if !input.Status.IsValid() || !input.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: status must be APPROVED or REJECTED", utils.ErrInvalidInput)
	}

	requisition, err := utils.FetchModel[Requisition](ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := utils.OrgLock(ctx, requisition.OrgId, "requisition", "models", "UpdateRequisitionStatus")
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the lock; a concurrent decision may have landed first.
	requisition, err = utils.FetchModel[Requisition](ctx, id)
	if err != nil {
		return nil, err
	}
	if !requisition.Status.CanTransitionTo(input.Status) {
		return nil, fmt.Errorf("%w: requisition #%d is already %s", utils.ErrInvalidInput, requisition.ID, requisition.Status)
	}

	before := *requisition
	requisition.Status = input.Status

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Requisition{}).Where("id = ?", requisition.ID).
			Update("status", requisition.Status).Error; err != nil {
			return err
		}
		if requisition.Status == RequisitionStatusApproved {
			comment := fmt.Sprintf("So'rov #%d tasdiqlandi (Kirim)", requisition.ID)
			_, err := appendStockTransaction(tx, requisition.OrgId, &Product{
				ID:   requisition.ProductId,
				Name: requisition.ProductName,
			}, requisition.Variant, requisition.Qty, TransactionTypeIn, comment)
			if err != nil {
				return err
			}
		}
		description := fmt.Sprintf("Requisition #%d %s.", requisition.ID, requisition.Status)
		return createHistory(tx, "status", requisition.ID, "requisitions", before, requisition, description)
	})
	if err != nil {
		return nil, err
	}

	trace.SpanFromContext(ctx).AddEvent(fmt.Sprintf("requisition #%d %s", requisition.ID, requisition.Status))
	notifyRequisitionDecided(ctx, requisition)
	return requisition, nil
}
