package notes

import (
	"testing"

	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

func TestNew(t *testing.T) {
	patientID := types.NewID()
	authorID := types.NewID()

	tests := []struct {
		name        string
		patientID   types.ID
		content     string
		noteType    NoteType
		expectError bool
		wantType    NoteType
	}{
		{"Progress note", patientID, "Stable overnight.", TypeProgress, false, TypeProgress},
		{"Default type", patientID, "Stable overnight.", "", false, TypeProgress},
		{"Discharge summary", patientID, "Discharged home.", TypeDischarge, false, TypeDischarge},
		{"Missing patient", types.ID(""), "Stable overnight.", TypeProgress, true, ""},
		{"Empty content", patientID, "", TypeProgress, true, ""},
		{"Unknown type", patientID, "Stable overnight.", NoteType("Nursing Note"), true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := New(tt.patientID, tt.content, tt.noteType, authorID)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("Expected no error, got %v", err)
				return
			}
			if n.Type != tt.wantType {
				t.Errorf("Expected type '%s', got '%s'", tt.wantType, n.Type)
			}
			if n.CreatedBy != authorID {
				t.Error("Expected author to be recorded")
			}
		})
	}
}
