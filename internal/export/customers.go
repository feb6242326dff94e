// Package export renders synced data as spreadsheets.
package export

import (
	"fmt"
	"io"

	"sap-sales-sync/internal/records"

	"github.com/xuri/excelize/v2"
)

// ContentTypeXLSX is the media type of the workbooks written here
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CustomerSheet is the name of the single worksheet of the customer export
const CustomerSheet = "Customer Info"

type column struct {
	header string
	width  float64
	value  func(records.Customer) string
}

var customerColumns = []column{
	{"Customer No (Kunnr)", 15, func(c records.Customer) string { return c.Kunnr }},
	{"Sales Org (Vkorg)", 15, func(c records.Customer) string { return c.Vkorg }},
	{"Sales District (Bzirk)", 15, func(c records.Customer) string { return c.Bzirk }},
	{"Customer Name (Name1)", 30, func(c records.Customer) string { return c.Name1 }},
	{"District Name (Bztxt)", 20, func(c records.Customer) string { return c.Bztxt }},
}

// WriteCustomers writes a workbook with a bold header row and one row per customer.
func WriteCustomers(w io.Writer, customers []records.Customer) error {
	f := excelize.NewFile()
	defer f.Close()

	// rename the default sheet rather than adding a second one
	if err := f.SetSheetName(f.GetSheetName(0), CustomerSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for i, col := range customerColumns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(CustomerSheet, name, name, col.width); err != nil {
			return fmt.Errorf("set width of %s: %w", name, err)
		}
	}

	header := make([]interface{}, len(customerColumns))
	for i, col := range customerColumns {
		header[i] = col.header
	}
	if err := f.SetSheetRow(CustomerSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(customerColumns), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(CustomerSheet, "A1", last, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, c := range customers {
		row := make([]interface{}, len(customerColumns))
		for j, col := range customerColumns {
			row[j] = col.value(c)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(CustomerSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
