package exporter

import (
	"fmt"
	"io"
	"time"

	"bulkops/internal/academic"

	"github.com/go-pdf/fpdf"
)

// Renderer writes one student's schedule document.
type Renderer interface {
	Render(w io.Writer, s academic.Student, term string, enrollments []academic.Enrollment) error
}

// PDFRenderer lays schedules out on A4 with the core Helvetica font.
type PDFRenderer struct {
	now func() time.Time
}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{now: time.Now}
}

var scheduleColumns = []struct {
	title string
	width float64
}{
	{"Code", 30},
	{"Course", 95},
	{"Credits", 25},
	{"Section", 30},
}

func (r *PDFRenderer) Render(w io.Writer, s academic.Student, term string, enrollments []academic.Enrollment) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(fmt.Sprintf("Schedule %s %s", s.AcademicNumber, term), true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr("Course Schedule"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	for _, line := range [][2]string{
		{"Student", s.Name},
		{"Academic number", s.AcademicNumber},
		{"Program", s.Program.Name},
		{"Level", s.Level.Name},
		{"Term", term},
	} {
		pdf.CellFormat(45, 7, tr(line[0]+":"), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, tr(line[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range scheduleColumns {
		pdf.CellFormat(col.width, 8, col.title, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	credits := 0
	for _, e := range enrollments {
		pdf.CellFormat(scheduleColumns[0].width, 7, tr(e.Course.Code), "1", 0, "L", false, 0, "")
		pdf.CellFormat(scheduleColumns[1].width, 7, tr(e.Course.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(scheduleColumns[2].width, 7, fmt.Sprint(e.Course.CreditHours), "1", 0, "C", false, 0, "")
		pdf.CellFormat(scheduleColumns[3].width, 7, tr(e.Section), "1", 1, "C", false, 0, "")
		credits += e.Course.CreditHours
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 7, fmt.Sprintf("Total credit hours: %d", credits), "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(0, 6, "Generated "+r.now().UTC().Format(time.RFC1123), "", 1, "R", false, 0, "")

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to lay out schedule: %w", err)
	}
	return pdf.Output(w)
}
