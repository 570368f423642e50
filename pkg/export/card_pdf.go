package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CardCourse is one course line printed on a registration card.
type CardCourse struct {
	Code        string
	Title       string
	CreditHours int
	Status      string
}

// CardDocument carries everything printed on a registration card. An empty
// CardNumber renders a preview watermark instead of the issued card header.
type CardDocument struct {
	Institution   string
	StudentName   string
	StudentEmail  string
	SemesterName  string
	CardNumber    string
	IssuedDate    *time.Time
	Status        string
	Courses       []CardCourse
	PaymentStatus string
}

// TotalCredits sums credit hours across the printed courses.
func (d CardDocument) TotalCredits() int {
	total := 0
	for _, c := range d.Courses {
		total += c.CreditHours
	}
	return total
}

// CardRenderer renders registration cards as A4 PDFs.
type CardRenderer struct{}

// NewCardRenderer constructs a renderer.
func NewCardRenderer() *CardRenderer {
	return &CardRenderer{}
}

// Render produces the PDF bytes for doc.
func (r *CardRenderer) Render(doc CardDocument) ([]byte, error) {
	if doc.StudentName == "" || doc.SemesterName == "" {
		return nil, fmt.Errorf("card requires student and semester")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle("Registration Card", false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, strings.ToUpper(doc.Institution), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 12)
	title := "SEMESTER REGISTRATION CARD"
	if doc.CardNumber == "" {
		title = "REGISTRATION PREVIEW - NOT AN ISSUED CARD"
	}
	pdf.CellFormat(0, 8, title, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	cardNumber := doc.CardNumber
	if cardNumber == "" {
		cardNumber = "-"
	}
	issued := "-"
	if doc.IssuedDate != nil {
		issued = doc.IssuedDate.UTC().Format("02 Jan 2006")
	}
	payment := doc.PaymentStatus
	if payment == "" {
		payment = "NO PAYMENT RECORD"
	}
	info := [][2]string{
		{"Card Number", cardNumber},
		{"Student", doc.StudentName},
		{"Email", doc.StudentEmail},
		{"Semester", doc.SemesterName},
		{"Status", doc.Status},
		{"Issued", issued},
		{"Payment", payment},
	}
	for _, row := range info {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(40, 7, row[0], "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, row[1], "", 1, "", false, 0, "")
	}
	pdf.Ln(4)

	headers := []string{"Code", "Course", "Credits", "Status"}
	widths := []float64{30, 95, 25, 30}
	pdf.SetFont("Arial", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, c := range doc.Courses {
		pdf.CellFormat(widths[0], 7, c.Code, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[1], 7, c.Title, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[2], 7, strconv.Itoa(c.CreditHours), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[3], 7, c.Status, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(widths[0]+widths[1], 8, "Total credit hours", "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[2], 8, strconv.Itoa(doc.TotalCredits()), "1", 0, "C", false, 0, "")
	pdf.CellFormat(widths[3], 8, "", "1", 1, "", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render card pdf: %w", err)
	}
	return buf.Bytes(), nil
}
