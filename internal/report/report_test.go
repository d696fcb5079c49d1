package report

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/drmas001/imd-v2.8/internal/appointment"
	"github.com/drmas001/imd-v2.8/internal/consultation"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
	"github.com/drmas001/imd-v2.8/internal/ward/domain"
)

func reportAdmission(t *testing.T) *domain.Admission {
	t.Helper()
	mrn, err := types.ParseMRN("A100")
	if err != nil {
		t.Fatalf("Expected valid MRN, got %v", err)
	}
	return &domain.Admission{
		ID:                  types.NewID(),
		PatientName:         "Omar Haddad",
		PatientMRN:          mrn,
		VisitNumber:         2,
		Department:          "Neurology",
		Diagnosis:           "Ischemic stroke",
		Status:              domain.AdmissionStatusActive,
		AdmissionDate:       time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC),
		ShiftType:           domain.ShiftMorning,
		AdmittingDoctorName: "Dr. Salem",
	}
}

func TestDailyReport(t *testing.T) {
	now := time.Date(2024, 1, 10, 14, 30, 0, 0, time.UTC)
	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	appt, err := appointment.New("Sara Nasser", "C300", "Cardiology", now.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("Expected valid appointment, got %v", err)
	}
	consult, err := consultation.New("Lina Aziz", "B200", "Cardiology")
	if err != nil {
		t.Fatalf("Expected valid consultation, got %v", err)
	}
	consult.CreatedAt = now.Add(-2 * time.Hour)

	doc := DailyReport(
		[]*domain.Admission{reportAdmission(t)},
		[]consultation.Consultation{*consult},
		[]appointment.Appointment{*appt},
		date, "", now,
	)

	if doc.Title != "Daily Ward Report" {
		t.Errorf("Expected title 'Daily Ward Report', got '%s'", doc.Title)
	}
	if doc.Period != "2024-01-10" {
		t.Errorf("Expected period 2024-01-10, got %s", doc.Period)
	}
	if len(doc.Sections) != 3 {
		t.Fatalf("Expected 3 sections, got %d", len(doc.Sections))
	}

	admissions := doc.Sections[0]
	if len(admissions.Rows) != 1 {
		t.Fatalf("Expected 1 admission row, got %d", len(admissions.Rows))
	}
	row := admissions.Rows[0]
	if row[0] != "Omar Haddad" || row[1] != "A100" || row[2] != "Neurology" {
		t.Errorf("Unexpected admission row: %v", row)
	}
	if row[5] != "7" {
		t.Errorf("Expected 7 stay days, got %s", row[5])
	}

	consultations := doc.Sections[1]
	if len(consultations.Rows) != 1 {
		t.Fatalf("Expected 1 consultation row, got %d", len(consultations.Rows))
	}
	if consultations.Rows[0][0] != "Lina Aziz" || consultations.Rows[0][3] != "routine" {
		t.Errorf("Unexpected consultation row: %v", consultations.Rows[0])
	}
	if consultations.Empty != "No consultations found for this period." {
		t.Errorf("Unexpected empty line: %s", consultations.Empty)
	}

	appointments := doc.Sections[2]
	if len(appointments.Rows) != 1 {
		t.Fatalf("Expected 1 appointment row, got %d", len(appointments.Rows))
	}
	if appointments.Rows[0][0] != "Sara Nasser" {
		t.Errorf("Unexpected appointment row: %v", appointments.Rows[0])
	}
}

func TestLongStayReport(t *testing.T) {
	now := time.Date(2024, 1, 10, 14, 30, 0, 0, time.UTC)

	doc := LongStayReport([]*domain.Admission{reportAdmission(t)}, 6, now)

	if doc.Period != "stays of 6 days or longer" {
		t.Errorf("Unexpected period: %s", doc.Period)
	}
	if len(doc.Sections) != 1 {
		t.Fatalf("Expected 1 section, got %d", len(doc.Sections))
	}
	row := doc.Sections[0].Rows[0]
	if row[3] != "2024-01-03" || row[4] != "7" {
		t.Errorf("Unexpected long stay row: %v", row)
	}
}

func TestRenderTextSinglePage(t *testing.T) {
	now := time.Date(2024, 1, 10, 14, 30, 0, 0, time.UTC)
	doc := DailyReport([]*domain.Admission{reportAdmission(t)}, nil, nil, now, "Neurology", now)

	text, err := RenderText(doc)
	if err != nil {
		t.Fatalf("Expected render to succeed, got %v", err)
	}

	for _, want := range []string{
		"Daily Ward Report",
		"Generated: 2024-01-10 14:30",
		"Specialty: Neurology",
		"Omar Haddad",
		"No consultations found for this period.",
		"No appointments found for this period.",
		"Page 1 of 1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected rendered text to contain %q", want)
		}
	}

	// Content padded to the page budget, footer on the next line
	lines := strings.Split(text, "\n")
	if len(lines) != LinesPerPage+2 {
		t.Fatalf("Expected %d lines, got %d", LinesPerPage+2, len(lines))
	}
	if !strings.HasSuffix(lines[LinesPerPage], "Page 1 of 1") {
		t.Errorf("Expected the footer on line %d, got %q", LinesPerPage+1, lines[LinesPerPage])
	}
}

func TestRenderTextPagination(t *testing.T) {
	doc := Document{
		Title:       "T",
		GeneratedAt: time.Date(2024, 1, 10, 14, 30, 0, 0, time.UTC),
	}
	section := Section{
		Title:   "ROWS",
		Columns: []Column{{Header: "N", Width: 6}},
		Empty:   emptyLine("rows"),
	}
	for i := 0; i < 80; i++ {
		section.Rows = append(section.Rows, []string{"row"})
	}
	doc.Sections = []Section{section}

	text, err := RenderText(doc)
	if err != nil {
		t.Fatalf("Expected render to succeed, got %v", err)
	}

	pages := strings.Split(text, "\f")
	if len(pages) != 3 {
		t.Fatalf("Expected 3 pages, got %d", len(pages))
	}
	for i, page := range pages {
		want := fmt.Sprintf("Page %d of 3", i+1)
		if !strings.Contains(page, want) {
			t.Errorf("Expected page %d footer %q", i+1, want)
		}
	}
}

func TestRenderTextRowArity(t *testing.T) {
	doc := Document{
		Title:       "T",
		GeneratedAt: time.Now(),
		Sections: []Section{{
			Title:   "BAD",
			Columns: []Column{{Header: "A", Width: 5}, {Header: "B", Width: 5}},
			Rows:    [][]string{{"only one cell"}},
		}},
	}

	if _, err := RenderText(doc); err == nil {
		t.Error("Expected a formatting error for mismatched row arity")
	}
}

func TestSectionStartsOnFreshPage(t *testing.T) {
	long := make([]string, 38)
	for i := range long {
		long[i] = "line"
	}
	section := []string{"TITLE", "-----", "HEADER", "row", ""}

	pages := paginate([][]string{long, section})
	if len(pages) != 2 {
		t.Fatalf("Expected 2 pages, got %d", len(pages))
	}
	if len(pages[0]) != 38 {
		t.Errorf("Expected the first page to end before the section, got %d lines", len(pages[0]))
	}
	if pages[1][0] != "TITLE" {
		t.Errorf("Expected the section to start the second page, got %q", pages[1][0])
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"fits", "short", 10, "short"},
		{"exact", "exactly10!", 10, "exactly10!"},
		{"truncated", "a very long diagnosis text", 10, "a very ..."},
		{"narrow", "abcdef", 3, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.in, tt.width); got != tt.want {
				t.Errorf("Expected '%s', got '%s'", tt.want, got)
			}
		})
	}
}
