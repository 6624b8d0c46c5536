// Package report renders the one-page PDF sheet of a grant.
package report

import (
	"alsolved/internal/config"
	"alsolved/internal/filter"
	"alsolved/internal/htmltext"
	"alsolved/internal/models"
	"alsolved/internal/regions"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// excerptRunes bounds the plain-text excerpt of raw_content.
const excerptRunes = 1800

var (
	cNavy    = [3]int{27, 58, 84}
	cAccent  = [3]int{192, 82, 46}
	cGreen   = [3]int{42, 107, 69}
	cGreenBg = [3]int{233, 245, 237}
	cAmber   = [3]int{154, 123, 46}
	cAmberBg = [3]int{250, 244, 230}
	cRed     = [3]int{200, 50, 50}
	cRedBg   = [3]int{254, 235, 235}
	cGold    = [3]int{120, 90, 10}
	cGoldBg  = [3]int{252, 243, 207}
	cInk90   = [3]int{38, 38, 38}
	cInk50   = [3]int{107, 107, 107}
	cInk15   = [3]int{217, 217, 217}
	cWhite   = [3]int{255, 255, 255}
)

const (
	pageW    = 210.0
	marginL  = 20.0
	marginR  = 20.0
	contentW = pageW - marginL - marginR
)

func setFill(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetFillColor(c[0], c[1], c[2]) }
func setText(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetTextColor(c[0], c[1], c[2]) }
func setDraw(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetDrawColor(c[0], c[1], c[2]) }

// GrantSheet writes the A4 summary of g, classified at now.
func GrantSheet(w io.Writer, g models.GrantRecord, now time.Time) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginL, 15, marginR)
	pdf.SetAutoPageBreak(true, 22)
	pdf.SetTitle(g.DisplayTitle(), true)
	pdf.SetAuthor("AlSolved", false)
	pdf.SetCreationDate(now)

	cp := pdf.UnicodeTranslatorFromDescriptor("")
	tr := func(s string) string { return cp(sanitize(s)) }

	pdf.SetHeaderFunc(func() {
		setFill(pdf, cNavy)
		pdf.Rect(0, 0, pageW, 12, "F")
		pdf.SetFont("Helvetica", "B", 9)
		setText(pdf, cWhite)
		pdf.SetXY(marginL, 3.5)
		pdf.CellFormat(contentW/2, 5, "AlSolved", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(contentW/2, 5, tr("Scheda bando"), "", 0, "R", false, 0, "")
		pdf.SetY(20)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-14)
		setDraw(pdf, cInk15)
		pdf.SetLineWidth(0.3)
		pdf.Line(marginL, pdf.GetY(), pageW-marginR, pdf.GetY())
		pdf.SetY(-11)
		pdf.SetFont("Helvetica", "", 6.5)
		setText(pdf, cInk50)
		pdf.SetX(marginL)
		pdf.CellFormat(contentW/2, 8, tr("Generata il "+now.Format("02/01/2006")), "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW/2, 8, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()

	// title block
	pdf.SetFont("Helvetica", "B", 16)
	setText(pdf, cInk90)
	pdf.MultiCell(contentW, 7.5, tr(g.DisplayTitle()), "", "L", false)
	if g.SourceName != "" {
		pdf.SetFont("Helvetica", "", 9)
		setText(pdf, cInk50)
		pdf.MultiCell(contentW, 5, tr(g.SourceName), "", "L", false)
	}
	pdf.Ln(3)

	exp := filter.Classify(g, now)
	x := marginL
	y := pdf.GetY()
	switch {
	case exp.Expired:
		x += drawPill(pdf, x, y, tr("Scaduto"), cRedBg, cRed) + 2
	case exp.ExpiringSoon:
		x += drawPill(pdf, x, y, tr("In scadenza"), cAmberBg, cAmber) + 2
	default:
		x += drawPill(pdf, x, y, tr("Attivo"), cGreenBg, cGreen) + 2
	}
	if g.IsGold() {
		x += drawPill(pdf, x, y, tr("Gold"), cGoldBg, cGold) + 2
	}
	if g.IsCertified() {
		drawPill(pdf, x, y, tr("Certificato ATECO"), cGreenBg, cGreen)
	}
	pdf.SetY(y + 9)

	// facts
	deadline := "Non indicata"
	if exp.Label != "" {
		deadline = exp.Label
	}
	rows := [][2]string{
		{"ID", g.ID.String()},
		{"Regioni", strings.Join(regions.Names(g.RegionCodes(), 0), ", ")},
		{"Scadenza", deadline},
	}
	if v, ok := g.FinancialMax(); ok {
		rows = append(rows, [2]string{"Importo massimo", "EUR " + fmtEuro(v)})
	}
	if g.Analysis != nil && g.Analysis.FinancialMin != nil && *g.Analysis.FinancialMin > 0 {
		rows = append(rows, [2]string{"Importo minimo", "EUR " + fmtEuro(*g.Analysis.FinancialMin)})
	}
	if g.IsCertified() {
		rows = append(rows, [2]string{"Codici ATECO", g.Analysis.AtecoCodes})
	}
	for _, r := range rows {
		pdf.SetFont("Helvetica", "B", 9)
		setText(pdf, cInk50)
		pdf.CellFormat(38, 6, tr(r[0]), "B", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9.5)
		setText(pdf, cInk90)
		pdf.MultiCell(contentW-38, 6, tr(r[1]), "B", "L", false)
	}
	pdf.Ln(4)

	if s := g.Summary(); s != "" {
		section(pdf, tr("In sintesi"))
		pdf.SetFont("Helvetica", "", 10)
		setText(pdf, cInk90)
		pdf.MultiCell(contentW, 5.2, tr(s), "", "L", false)
		pdf.Ln(3)
	}

	if ex := htmltext.PlainText(g.RawContent, excerptRunes); ex != "" {
		section(pdf, tr("Dal testo del bando"))
		pdf.SetFont("Helvetica", "", 8.5)
		setText(pdf, cInk50)
		pdf.MultiCell(contentW, 4.4, tr(ex), "", "L", false)
		pdf.Ln(3)
	}

	if g.URL != "" {
		section(pdf, tr("Fonte ufficiale"))
		pdf.SetFont("Helvetica", "U", 9)
		setText(pdf, cNavy)
		pdf.CellFormat(contentW, 5, tr(truncURL(g.URL, 95)), "", 1, "L", false, 0, g.URL)
		pdf.Ln(3)
	}

	consult := config.Cfg.ConsultEmail
	if consult == "" {
		consult = "consulenza@alsolved.com"
	}
	setFill(pdf, cNavy)
	y = pdf.GetY() + 2
	pdf.Rect(marginL, y, 2.5, 14, "F")
	pdf.SetXY(marginL+6, y+1)
	pdf.SetFont("Helvetica", "B", 10)
	setText(pdf, cAccent)
	pdf.CellFormat(contentW-6, 5.5, tr("Vuoi partecipare? Richiedi una consulenza"), "", 2, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	setText(pdf, cInk90)
	pdf.CellFormat(contentW-6, 5, tr("Scrivi a "+consult+" citando l'ID "+g.ID.String()+"."), "", 1, "L", false, 0, "")

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("report: render: %w", err)
	}
	return pdf.Output(w)
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 10.5)
	setText(pdf, cNavy)
	pdf.CellFormat(contentW, 6, title, "", 1, "L", false, 0, "")
}

// drawPill draws a rounded label and returns its width.
func drawPill(pdf *gofpdf.Fpdf, x, y float64, text string, bg, fg [3]int) float64 {
	pdf.SetFont("Helvetica", "B", 7.5)
	w := pdf.GetStringWidth(text) + 8
	setFill(pdf, bg)
	pdf.RoundedRect(x, y, w, 5.5, 2.5, "1234", "F")
	setText(pdf, fg)
	pdf.SetXY(x, y+0.5)
	pdf.CellFormat(w, 5, text, "", 0, "C", false, 0, "")
	return w
}

// sanitize replaces runes the core fonts cannot encode.
func sanitize(s string) string {
	return strings.NewReplacer(
		"≤", "<=", "≥", ">=", "→", "->", " ", " ",
	).Replace(s)
}

func fmtEuro(amount float64) string {
	if amount == 0 {
		return "0"
	}
	neg := amount < 0
	if neg {
		amount = -amount
	}
	whole := int64(amount)
	frac := int(math.Round((amount - float64(whole)) * 100))
	if frac == 100 {
		whole++
		frac = 0
	}
	s := addDotSep(fmt.Sprintf("%d", whole))
	prefix := ""
	if neg {
		prefix = "-"
	}
	if frac > 0 {
		return fmt.Sprintf("%s%s,%02d", prefix, s, frac)
	}
	return prefix + s
}

func addDotSep(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	return addDotSep(s[:n-3]) + "." + s[n-3:]
}

func truncURL(url string, max int) string {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimPrefix(url, "www.")
	if r := []rune(url); len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return url
}
