package services

import (
	"fmt"
	"io"
	"strings"

	"github.com/hrita/customer-portal/internal/config"
	"github.com/hrita/customer-portal/internal/models"
	"github.com/jung-kurt/gofpdf"
)

const documentFont = "Helvetica"

// DocumentService renders estimate documents as PDF
type DocumentService struct {
	cfg config.DocumentsConfig
}

// NewDocumentService creates a new document service
func NewDocumentService(cfg config.DocumentsConfig) *DocumentService {
	return &DocumentService{cfg: cfg}
}

// EstimateFilename is the download name of an estimate PDF
func EstimateFilename(e *models.Estimate) string {
	return fmt.Sprintf("estimate_%s_v%d.pdf", e.ClientPhone, e.Version)
}

// RenderEstimate writes the estimate for client as a single PDF to w
func (s *DocumentService) RenderEstimate(w io.Writer, e *models.Estimate, client *models.User) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Estimate v%d", e.Version), false)
	pdf.SetAuthor(s.cfg.CompanyName, false)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(documentFont, "I", 9)
		footer := fmt.Sprintf("Page %d/{nb}", pdf.PageNo())
		if s.cfg.FooterNote != "" {
			footer = s.cfg.FooterNote + "  |  " + footer
		}
		pdf.CellFormat(0, 10, tr(footer), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	// Letterhead
	pdf.SetFont(documentFont, "B", 18)
	pdf.CellFormat(0, 10, tr(s.cfg.CompanyName), "", 1, "L", false, 0, "")
	pdf.SetFont(documentFont, "", 10)
	if s.cfg.CompanyAddress != "" {
		pdf.CellFormat(0, 5, tr(s.cfg.CompanyAddress), "", 1, "L", false, 0, "")
	}
	if s.cfg.CompanyPhone != "" {
		pdf.CellFormat(0, 5, tr("Phone: "+s.cfg.CompanyPhone), "", 1, "L", false, 0, "")
	}
	hr(pdf)

	pdf.SetFont(documentFont, "B", 14)
	pdf.CellFormat(0, 9, tr(e.Title), "", 1, "L", false, 0, "")

	kvLine(pdf, tr, "Client", client.Name)
	kvLine(pdf, tr, "Phone", client.Phone)
	if client.City.Valid {
		kvLine(pdf, tr, "City", client.City.String)
	}
	kvLine(pdf, tr, "Version", fmt.Sprintf("%d", e.Version))
	kvLine(pdf, tr, "Date", e.UpdatedAt.Format("02 Jan 2006"))
	kvLine(pdf, tr, "Status", strings.ReplaceAll(string(e.Status), "_", " "))
	pdf.Ln(3)

	if len(e.Items) > 0 {
		lineItemTable(pdf, tr, e)
	}

	pdf.Ln(2)
	pdf.SetFont(documentFont, "B", 12)
	pdf.CellFormat(120, 8, "Total", "T", 0, "R", false, 0, "")
	pdf.CellFormat(50, 8, tr(formatAmount(e.Amount, e.Currency)), "T", 1, "R", false, 0, "")

	if e.Notes.Valid {
		pdf.Ln(4)
		pdf.SetFont(documentFont, "B", 11)
		pdf.CellFormat(0, 7, "Notes", "", 1, "L", false, 0, "")
		pdf.SetFont(documentFont, "", 10)
		pdf.MultiCell(0, 5, tr(e.Notes.String), "", "L", false)
	}

	return pdf.Output(w)
}

func lineItemTable(pdf *gofpdf.Fpdf, tr func(string) string, e *models.Estimate) {
	widths := []float64{90, 20, 30, 30}
	headers := []string{"Item", "Qty", "Unit price", "Amount"}

	pdf.SetFont(documentFont, "B", 10)
	pdf.SetFillColor(235, 235, 235)
	for i, h := range headers {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 7, h, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(documentFont, "", 10)
	for _, item := range e.Items {
		pdf.CellFormat(widths[0], 6, tr(item.Description), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, fmt.Sprintf("%g", item.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 6, fmt.Sprintf("%.2f", item.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 6, fmt.Sprintf("%.2f", item.Total()), "1", 1, "R", false, 0, "")
	}
}

func kvLine(pdf *gofpdf.Fpdf, tr func(string) string, key, val string) {
	pdf.SetFont(documentFont, "B", 10)
	pdf.CellFormat(30, 6, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(documentFont, "", 10)
	pdf.CellFormat(0, 6, tr(val), "", 1, "L", false, 0, "")
}

func hr(pdf *gofpdf.Fpdf) {
	y := pdf.GetY() + 2
	pdf.SetLineWidth(0.2)
	pdf.Line(20, y, 190, y)
	pdf.SetY(y + 3)
}

func formatAmount(amount float64, currency string) string {
	return fmt.Sprintf("%s %.2f", currency, amount)
}
