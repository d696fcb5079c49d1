package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/drmas001/imd-v2.8/internal/appointment"
	"github.com/drmas001/imd-v2.8/internal/consultation"
	"github.com/drmas001/imd-v2.8/internal/ward/domain"
)

// Document is a finished report: a header plus tabular sections,
// ready for a renderer. Builders do no fetching or filtering; they
// format the collections they are handed.
type Document struct {
	Title       string    `json:"title"`
	GeneratedAt time.Time `json:"generated_at"`
	Period      string    `json:"period,omitempty"`
	Specialty   string    `json:"specialty,omitempty"`
	Sections    []Section `json:"sections"`
}

// Section is one table. Empty is the line rendered when there are no
// rows.
type Section struct {
	Title   string     `json:"title"`
	Columns []Column   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Empty   string     `json:"empty"`
}

// Column pairs a header with its fixed render width.
type Column struct {
	Header string `json:"header"`
	Width  int    `json:"width"`
}

func emptyLine(things string) string {
	return fmt.Sprintf("No %s found for this period.", things)
}

// DailyReport formats the ward's day: the active admissions plus the
// consultations and appointments falling on the report date.
func DailyReport(admissions []*domain.Admission, consultations []consultation.Consultation, appointments []appointment.Appointment, date time.Time, specialty string, now time.Time) Document {
	doc := Document{
		Title:       "Daily Ward Report",
		GeneratedAt: now,
		Period:      date.Format("2006-01-02"),
		Specialty:   specialty,
	}

	admissionRows := make([][]string, 0, len(admissions))
	for _, a := range admissions {
		admissionRows = append(admissionRows, []string{
			a.PatientName,
			string(a.PatientMRN),
			a.Department,
			strconv.Itoa(a.VisitNumber),
			string(a.ShiftType),
			strconv.Itoa(domain.StayDuration(a.AdmissionDate, now)),
			a.AdmittingDoctorName,
		})
	}
	doc.Sections = append(doc.Sections, Section{
		Title: "ACTIVE ADMISSIONS",
		Columns: []Column{
			{Header: "NAME", Width: 22},
			{Header: "MRN", Width: 10},
			{Header: "DEPARTMENT", Width: 16},
			{Header: "VISIT", Width: 5},
			{Header: "SHIFT", Width: 16},
			{Header: "DAYS", Width: 4},
			{Header: "DOCTOR", Width: 20},
		},
		Rows:  admissionRows,
		Empty: emptyLine("active admissions"),
	})

	consultationRows := make([][]string, 0, len(consultations))
	for _, c := range consultations {
		consultationRows = append(consultationRows, []string{
			c.PatientName,
			string(c.MRN),
			c.Specialty,
			string(c.Urgency),
			string(c.Status),
			c.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	doc.Sections = append(doc.Sections, Section{
		Title: "CONSULTATIONS",
		Columns: []Column{
			{Header: "NAME", Width: 22},
			{Header: "MRN", Width: 10},
			{Header: "SPECIALTY", Width: 16},
			{Header: "URGENCY", Width: 9},
			{Header: "STATUS", Width: 9},
			{Header: "REQUESTED", Width: 16},
		},
		Rows:  consultationRows,
		Empty: emptyLine("consultations"),
	})

	appointmentRows := make([][]string, 0, len(appointments))
	for _, a := range appointments {
		appointmentRows = append(appointmentRows, []string{
			a.PatientName,
			string(a.MRN),
			a.Specialty,
			a.ScheduledAt.Format("2006-01-02 15:04"),
			string(a.Status),
			a.DoctorName,
		})
	}
	doc.Sections = append(doc.Sections, Section{
		Title: "APPOINTMENTS",
		Columns: []Column{
			{Header: "NAME", Width: 22},
			{Header: "MRN", Width: 10},
			{Header: "SPECIALTY", Width: 16},
			{Header: "TIME", Width: 16},
			{Header: "STATUS", Width: 9},
			{Header: "DOCTOR", Width: 20},
		},
		Rows:  appointmentRows,
		Empty: emptyLine("appointments"),
	})

	return doc
}

// LongStayReport formats the admissions at or past the given stay
// duration.
func LongStayReport(admissions []*domain.Admission, minDuration int, now time.Time) Document {
	doc := Document{
		Title:       "Long Stay Report",
		GeneratedAt: now,
		Period:      fmt.Sprintf("stays of %d days or longer", minDuration),
	}

	rows := make([][]string, 0, len(admissions))
	for _, a := range admissions {
		rows = append(rows, []string{
			a.PatientName,
			string(a.PatientMRN),
			a.Department,
			a.AdmissionDate.Format("2006-01-02"),
			strconv.Itoa(domain.StayDuration(a.AdmissionDate, now)),
			a.Diagnosis,
		})
	}
	doc.Sections = append(doc.Sections, Section{
		Title: "LONG STAY PATIENTS",
		Columns: []Column{
			{Header: "NAME", Width: 22},
			{Header: "MRN", Width: 10},
			{Header: "DEPARTMENT", Width: 16},
			{Header: "ADMITTED", Width: 10},
			{Header: "DAYS", Width: 4},
			{Header: "DIAGNOSIS", Width: 26},
		},
		Rows:  rows,
		Empty: emptyLine("long stay patients"),
	})

	return doc
}
