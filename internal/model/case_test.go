package model

import (
	"reflect"
	"testing"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Z98.890", "Z98890"},
		{"z98890", "Z98890"},
		{"  M54.50 ", "M5450"},
		{"J18.9", "J189"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeCode(tt.in); got != tt.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCase_Partition(t *testing.T) {
	tests := []struct {
		name               string
		c                  Case
		wantMatched        []string
		wantSutherlandOnly []string
		wantAIOnly         []string
		wantResult         MatchResult
	}{
		{
			name: "complete match regardless of dot formatting",
			c: Case{
				PatientID:       "1001",
				SutherlandCodes: []string{"J18.9", "Z98.890"},
				AICodes:         []string{"J189", "Z98890"},
			},
			wantMatched: []string{"J18.9", "Z98.890"},
			wantResult:  CompleteMatch,
		},
		{
			name: "partial match keeps each side's leftovers",
			c: Case{
				PatientID:       "1002",
				SutherlandCodes: []string{"J18.9", "M54.50"},
				AICodes:         []string{"J18.9", "R91.8"},
			},
			wantMatched:        []string{"J18.9"},
			wantSutherlandOnly: []string{"M54.50"},
			wantAIOnly:         []string{"R91.8"},
			wantResult:         PartialMatch,
		},
		{
			name: "no shared codes",
			c: Case{
				PatientID:       "1003",
				SutherlandCodes: []string{"Z98890"},
				AICodes:         []string{"R91.8"},
			},
			wantSutherlandOnly: []string{"Z98890"},
			wantAIOnly:         []string{"R91.8"},
			wantResult:         NoMatch,
		},
		{
			name: "one side empty",
			c: Case{
				PatientID:       "2664438",
				SutherlandCodes: []string{"Z98890"},
			},
			wantSutherlandOnly: []string{"Z98890"},
			wantResult:         NoMatch,
		},
		{
			name: "both sides empty is trivially complete",
			c: Case{
				PatientID: "1005",
			},
			wantResult: CompleteMatch,
		},
		{
			name: "supplied match result is preserved",
			c: Case{
				PatientID:       "1006",
				SutherlandCodes: []string{"J18.9"},
				AICodes:         []string{"J18.9"},
				MatchResult:     PartialMatch,
			},
			wantMatched: []string{"J18.9"},
			wantResult:  PartialMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.c.Partition()
			if !reflect.DeepEqual(tt.c.MatchedCodes, tt.wantMatched) {
				t.Errorf("MatchedCodes = %v, want %v", tt.c.MatchedCodes, tt.wantMatched)
			}
			if !reflect.DeepEqual(tt.c.SutherlandOnly, tt.wantSutherlandOnly) {
				t.Errorf("SutherlandOnly = %v, want %v", tt.c.SutherlandOnly, tt.wantSutherlandOnly)
			}
			if !reflect.DeepEqual(tt.c.AIOnly, tt.wantAIOnly) {
				t.Errorf("AIOnly = %v, want %v", tt.c.AIOnly, tt.wantAIOnly)
			}
			if tt.c.MatchResult != tt.wantResult {
				t.Errorf("MatchResult = %v, want %v", tt.c.MatchResult, tt.wantResult)
			}
		})
	}
}

func TestCase_DiscrepantCodes(t *testing.T) {
	c := Case{
		PatientID:       "1002",
		SutherlandCodes: []string{"J18.9", "M54.50"},
		AICodes:         []string{"J18.9", "R91.8"},
	}
	c.Partition()

	got := c.DiscrepantCodes()
	want := []string{"M54.50", "R91.8"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DiscrepantCodes() = %v, want %v", got, want)
	}
}

func TestCase_Validate(t *testing.T) {
	c := Case{SutherlandCodes: []string{"J18.9"}}
	if err := c.Validate(); err == nil {
		t.Error("Validate() = nil, want error for missing patient identifier")
	}

	c.PatientID = "1001"
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	c.MatchResult = MatchResult("mostly_match")
	if err := c.Validate(); err == nil {
		t.Error("Validate() = nil, want error for unknown match result")
	}
}
