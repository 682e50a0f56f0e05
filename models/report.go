package models

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

type RequisitionReportInput struct {
	OrgId  string             `json:"org_id" form:"org_id"`
	Status *RequisitionStatus `json:"status" form:"status"`
	From   *time.Time         `json:"from" form:"from" time_format:"2006-01-02"`
	To     *time.Time         `json:"to" form:"to" time_format:"2006-01-02"`
}

// ExportRequisitionsExcel builds the requisition register as an xlsx
// workbook, one row per requisition matching the filter.
func ExportRequisitionsExcel(ctx context.Context, input *RequisitionReportInput) (*excelize.File, error) {
	requisitions, err := GetRequisitions(ctx, input.OrgId, input.Status)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheetName := "Sheet1"
	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, err
	}

	// Add headers
	f.SetCellValue(sheetName, "A1", "ID")
	f.SetCellValue(sheetName, "B1", "Sana")
	f.SetCellValue(sheetName, "C1", "Tashkilot")
	f.SetCellValue(sheetName, "D1", "Mahsulot")
	f.SetCellValue(sheetName, "E1", "Guruh")
	f.SetCellValue(sheetName, "F1", "Miqdor")
	f.SetCellValue(sheetName, "G1", "Birlik")
	f.SetCellValue(sheetName, "H1", "Bemor")
	f.SetCellValue(sheetName, "I1", "Holat")
	f.SetCellValue(sheetName, "J1", "Izoh")

	// Add data
	rowNo := 2
	for _, r := range requisitions {
		if input.From != nil && r.CreatedAt.Before(*input.From) {
			continue
		}
		if input.To != nil && r.CreatedAt.After(*input.To) {
			continue
		}
		f.SetCellValue(sheetName, "A"+fmt.Sprint(rowNo), r.ID)
		f.SetCellValue(sheetName, "B"+fmt.Sprint(rowNo), r.CreatedAt.Format("2006-01-02 15:04"))
		f.SetCellValue(sheetName, "C"+fmt.Sprint(rowNo), r.OrgName)
		f.SetCellValue(sheetName, "D"+fmt.Sprint(rowNo), r.ProductName)
		f.SetCellValue(sheetName, "E"+fmt.Sprint(rowNo), r.Variant)
		f.SetCellValue(sheetName, "F"+fmt.Sprint(rowNo), r.Qty)
		f.SetCellValue(sheetName, "G"+fmt.Sprint(rowNo), r.Unit)
		f.SetCellValue(sheetName, "H"+fmt.Sprint(rowNo), r.PatientName)
		f.SetCellValue(sheetName, "I"+fmt.Sprint(rowNo), string(r.Status))
		f.SetCellValue(sheetName, "J"+fmt.Sprint(rowNo), r.Comment)
		rowNo++
	}

	return f, nil
}
