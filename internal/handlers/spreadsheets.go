package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"

	"bulk-upload-service/internal/models"
	"bulk-upload-service/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

const (
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	productsSheet    = "Products"
	instructionSheet = "Instructions"
	correctionsSheet = "Corrections"
)

// GetTemplate returns an upload template definition or file
// GET /api/v1/bulk-uploads/template?type=ELECTRONICS|GENERAL&format=json|csv|xlsx
func (h *BulkUploadHandler) GetTemplate(c *gin.Context) {
	templateType := models.TemplateType(strings.ToUpper(c.DefaultQuery("type", string(models.TemplateGeneral))))
	if templateType != models.TemplateElectronics && templateType != models.TemplateGeneral {
		respondError(c, http.StatusBadRequest, "INVALID_TEMPLATE", "type must be ELECTRONICS or GENERAL")
		return
	}
	template := models.ImportTemplateFor(templateType)

	switch strings.ToLower(c.DefaultQuery("format", "json")) {
	case "csv":
		fileName := templateFileName(templateType, "csv")
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", "attachment; filename="+fileName)
		writer := csv.NewWriter(c.Writer)
		writer.Write(templateHeader(template))
		writer.Flush()
	case "xlsx":
		f, err := buildTemplateWorkbook(template)
		if err != nil {
			h.logger.WithError(err).Error("Failed to build template workbook")
			respondError(c, http.StatusInternalServerError, "TEMPLATE_FAILED", "Failed to build template")
			return
		}
		defer f.Close()
		c.Header("Content-Type", xlsxContentType)
		c.Header("Content-Disposition", "attachment; filename="+templateFileName(templateType, "xlsx"))
		if err := f.Write(c.Writer); err != nil {
			h.logger.WithError(err).Error("Failed to write template workbook")
		}
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"template": template,
		})
	}
}

func templateFileName(t models.TemplateType, ext string) string {
	return fmt.Sprintf("bulk_upload_%s_template.%s", strings.ToLower(string(t)), ext)
}

// templateHeader marks required columns with " *"; ingestion strips the marker again
func templateHeader(template models.ImportTemplate) []string {
	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
		if col.Required {
			headers[i] += " *"
		}
	}
	return headers
}

// headerStyles returns the plain and the required-column header styles
func headerStyles(f *excelize.File) (int, int, error) {
	plain, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return 0, 0, err
	}
	required, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return 0, 0, err
	}
	return plain, required, nil
}

func buildTemplateWorkbook(template models.ImportTemplate) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", productsSheet); err != nil {
		f.Close()
		return nil, err
	}

	plainStyle, requiredStyle, err := headerStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	headers := templateHeader(template)
	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(productsSheet, cell, headers[i])
		if col.Required {
			f.SetCellStyle(productsSheet, cell, cell, requiredStyle)
		} else {
			f.SetCellStyle(productsSheet, cell, cell, plainStyle)
		}
		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(productsSheet, colName, colName, 20)
	}

	// Sample rows go on the instructions sheet so they are never uploaded by accident
	if _, err := f.NewSheet(instructionSheet); err != nil {
		f.Close()
		return nil, err
	}
	f.SetCellValue(instructionSheet, "A1", "Bulk Upload Instructions")
	f.SetCellValue(instructionSheet, "A3", "Fill one product per row on the Products sheet. Columns marked * are required.")
	f.SetCellValue(instructionSheet, "A4", "Prices are in Malawi Kwacha. Buyers see your price plus the platform fee.")
	f.SetCellValue(instructionSheet, "A5", "Nothing goes live until you review the preview and commit the upload.")
	if template.TemplateType == models.TemplateElectronics {
		f.SetCellValue(instructionSheet, "A6", "Add one \"Spec: <Name>\" column per specification. Phones, laptops and TVs need their key specs to go live.")
	} else {
		f.SetCellValue(instructionSheet, "A6", "Describe your product with Label_1/Value_1, Label_2/Value_2 and so on.")
	}

	f.SetCellValue(instructionSheet, "A8", "Column Definitions:")
	for i, title := range []string{"Column", "Description", "Required", "Type", "Example"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 9)
		f.SetCellValue(instructionSheet, cell, title)
	}
	for i, col := range template.Columns {
		row := i + 10
		required := "Optional"
		if col.Required {
			required = "Required"
		}
		f.SetSheetRow(instructionSheet, fmt.Sprintf("A%d", row), &[]interface{}{col.Name, col.Description, required, col.Type, col.Example})
	}

	f.SetColWidth(instructionSheet, "A", "A", 25)
	f.SetColWidth(instructionSheet, "B", "B", 60)
	f.SetColWidth(instructionSheet, "C", "D", 15)
	f.SetColWidth(instructionSheet, "E", "E", 30)

	sheetIdx, _ := f.GetSheetIndex(productsSheet)
	f.SetActiveSheet(sheetIdx)
	return f, nil
}

func correctionFileName(report *services.CorrectionReport, ext string) string {
	return fmt.Sprintf("corrections_%s.%s", report.BatchID.String()[:8], ext)
}

func writeCorrectionsCSV(c *gin.Context, report *services.CorrectionReport) error {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename="+correctionFileName(report, "csv"))

	writer := csv.NewWriter(c.Writer)
	if err := writer.WriteAll(report.Table()); err != nil {
		return err
	}
	return writer.Error()
}

// buildCorrectionWorkbook lays the report out so the sheet can be fixed and uploaded again
func buildCorrectionWorkbook(report *services.CorrectionReport) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", correctionsSheet); err != nil {
		f.Close()
		return nil, err
	}
	plainStyle, reasonStyle, err := headerStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	table := report.Table()
	for r, cells := range table {
		values := make([]interface{}, len(cells))
		for i, v := range cells {
			values[i] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+1)
		if err := f.SetSheetRow(correctionsSheet, cell, &values); err != nil {
			f.Close()
			return nil, err
		}
	}

	header := table[0]
	for i, name := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		style := plainStyle
		if name == services.ColumnReason || name == services.ColumnReasonSecondary {
			style = reasonStyle
		}
		f.SetCellStyle(correctionsSheet, cell, cell, style)
		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(correctionsSheet, colName, colName, 20)
	}
	return f, nil
}

func writeCorrectionsXLSX(c *gin.Context, report *services.CorrectionReport) error {
	f, err := buildCorrectionWorkbook(report)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "EXPORT_FAILED", "Failed to build correction workbook")
		return err
	}
	defer f.Close()

	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", "attachment; filename="+correctionFileName(report, "xlsx"))
	return f.Write(c.Writer)
}
