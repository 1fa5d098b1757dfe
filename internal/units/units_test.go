package units_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/JaimeStill/qbank/internal/units"
)

func TestUpsertCommandValidate(t *testing.T) {
	tests := []struct {
		name       string
		cmd        units.UpsertCommand
		wantErr    bool
		wantCourse string
		wantTopics []string
	}{
		{
			name: "normalizes course and topics",
			cmd: units.UpsertCommand{
				CourseCode: " cs301 ",
				UnitNumber: 2,
				Name:       " Memory Management ",
				Topics:     []string{"paging", " paging ", "", "segmentation"},
			},
			wantCourse: "CS301",
			wantTopics: []string{"paging", "segmentation"},
		},
		{
			name:    "missing course",
			cmd:     units.UpsertCommand{UnitNumber: 1, Name: "Processes"},
			wantErr: true,
		},
		{
			name:    "missing name",
			cmd:     units.UpsertCommand{CourseCode: "CS301", UnitNumber: 1, Name: "  "},
			wantErr: true,
		},
		{
			name:    "unit number below one",
			cmd:     units.UpsertCommand{CourseCode: "CS301", Name: "Processes"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := tt.cmd
			err := cmd.Validate()
			if tt.wantErr {
				if !errors.Is(err, units.ErrInvalidUnit) {
					t.Errorf("err = %v, want ErrInvalidUnit", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if cmd.CourseCode != tt.wantCourse {
				t.Errorf("course = %q, want %q", cmd.CourseCode, tt.wantCourse)
			}
			if !slices.Equal(cmd.Topics, tt.wantTopics) {
				t.Errorf("topics = %v, want %v", cmd.Topics, tt.wantTopics)
			}
		})
	}
}

func TestNeighborhood(t *testing.T) {
	list := []units.Unit{
		{ID: 10, UnitNumber: 1},
		{ID: 11, UnitNumber: 2},
		{ID: 12, UnitNumber: 3},
		{ID: 13, UnitNumber: 4},
	}

	tests := []struct {
		name string
		id   int64
		want []int64
	}{
		{"first unit", 10, []int64{10, 11}},
		{"middle unit", 12, []int64{11, 12, 13}},
		{"last unit", 13, []int64{12, 13}},
		{"unknown unit", 99, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := units.Neighborhood(list, tt.id); !slices.Equal(got, tt.want) {
				t.Errorf("Neighborhood(%d) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
