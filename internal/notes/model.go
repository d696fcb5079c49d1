package notes

import (
	"fmt"
	"time"

	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// NoteType labels where a note came from. The workflow writes discharge
// summaries and consultation notes; staff write progress notes by hand.
type NoteType string

const (
	TypeProgress     NoteType = "Progress Note"
	TypeDischarge    NoteType = "Discharge Summary"
	TypeConsultation NoteType = "Consultation Note"
)

// ValidTypes lists the accepted note types
var ValidTypes = []NoteType{TypeProgress, TypeDischarge, TypeConsultation}

// Note is one entry in a patient's append-only clinical feed
type Note struct {
	ID            int64     `json:"id"`
	PatientID     types.ID  `json:"patient_id"`
	Content       string    `json:"content"`
	Type          NoteType  `json:"note_type"`
	CreatedBy     types.ID  `json:"created_by,omitempty"`
	CreatedByName string    `json:"created_by_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// New creates a note. The type defaults to a progress note.
func New(patientID types.ID, content string, noteType NoteType, createdBy types.ID) (*Note, error) {
	if patientID.IsZero() {
		return nil, fmt.Errorf("patient is required")
	}
	if content == "" {
		return nil, fmt.Errorf("note content is required")
	}
	if noteType == "" {
		noteType = TypeProgress
	}

	valid := false
	for _, t := range ValidTypes {
		if noteType == t {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("invalid note type %q", noteType)
	}

	return &Note{
		PatientID: patientID,
		Content:   content,
		Type:      noteType,
		CreatedBy: createdBy,
	}, nil
}

// AppendRequest is the request to append a note to a patient's feed
type AppendRequest struct {
	Content string   `json:"content"`
	Type    NoteType `json:"note_type,omitempty"`
}
