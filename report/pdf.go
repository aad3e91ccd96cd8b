// Package report renders the household list as a printable PDF.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"welfare-server-go/models"
)

const Title = "Laporan Data Kemiskinan"

type column struct {
	header string
	width  float64 // mm
	align  string
	value  func(h models.Household) string
}

// A4 portrait leaves 190mm between the default 10mm margins
var columns = []column{
	{"id", 10, "R", func(h models.Household) string { return strconv.FormatInt(h.ID, 10) }},
	{"name", 36, "L", func(h models.Household) string { return h.Name }},
	{"education", 22, "L", func(h models.Household) string { return h.Education }},
	{"num_children", 16, "R", func(h models.Household) string { return strconv.Itoa(h.NumChildren) }},
	{"monthly_income", 24, "R", func(h models.Household) string { return formatRupiah(h.MonthlyIncome) }},
	{"occupation", 36, "L", func(h models.Household) string { return h.Occupation }},
	{"classification", 20, "C", func(h models.Household) string { return string(h.Classification) }},
	{"created_at", 26, "C", func(h models.Household) string { return h.CreatedAt.Format("2006-01-02 15:04") }},
}

const (
	rowHeight  = 6.0
	fontFamily = "Helvetica"
)

// Write renders households to w and returns the number of pages
func Write(w io.Writer, households []models.Household, note string, now time.Time) (int, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(Title, true)
	pdf.SetCreator("welfare-server-go", true)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	inTable := false
	pdf.SetHeaderFunc(func() {
		if inTable {
			tableHeader(pdf, tr)
		}
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 8, fmt.Sprintf("Halaman %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 16)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, tr(Title), "", 1, "C", false, 0, "")

	pdf.SetFont(fontFamily, "", 9)
	pdf.CellFormat(0, 5, tr("Dibuat: "+now.Format("2006-01-02 15:04")), "", 1, "C", false, 0, "")
	if note = strings.TrimSpace(note); note != "" {
		pdf.Ln(2)
		pdf.MultiCell(0, 5, tr("Catatan: "+note), "", "L", false)
	}
	pdf.Ln(4)

	tableHeader(pdf, tr)
	inTable = true

	pdf.SetFont(fontFamily, "", 8)
	pdf.SetTextColor(0, 0, 0)
	var sum models.Summary
	for _, h := range households {
		sum.Add(h.Classification)
		for _, c := range columns {
			text := fit(pdf, tr, c.value(h), c.width-2)
			pdf.CellFormat(c.width, rowHeight, text, "1", 0, c.align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	inTable = false

	pdf.Ln(4)
	pdf.SetFont(fontFamily, "B", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Total: %d   Miskin: %d   Menengah: %d   Kaya: %d",
		sum.Total, sum.Miskin, sum.Menengah, sum.Kaya), "", 1, "L", false, 0, "")

	pages := pdf.PageNo()
	if err := pdf.Output(w); err != nil {
		return 0, fmt.Errorf("render pdf: %w", err)
	}
	return pages, nil
}

func tableHeader(pdf *fpdf.Fpdf, tr func(string) string) {
	pdf.SetFont(fontFamily, "B", 7)
	pdf.SetFillColor(128, 128, 128)
	pdf.SetTextColor(245, 245, 245)
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.25)
	for _, c := range columns {
		pdf.CellFormat(c.width, rowHeight, tr(c.header), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont(fontFamily, "", 8)
	pdf.SetTextColor(0, 0, 0)
}

// fit shortens s with "..." until it is at most width mm wide and returns
// it translated for the core fonts. s is trimmed as UTF-8, before tr.
func fit(pdf *fpdf.Fpdf, tr func(string) string, s string, width float64) string {
	if out := tr(s); pdf.GetStringWidth(out) <= width {
		return out
	}
	const ellipsis = "..."
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(tr(string(runes)+ellipsis)) > width {
		runes = runes[:len(runes)-1]
	}
	return tr(string(runes) + ellipsis)
}

// formatRupiah renders 2500000.5 as "2.500.000,50"
func formatRupiah(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	whole, frac := s[:len(s)-3], s[len(s)-2:]

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if frac != "00" {
		out += "," + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
