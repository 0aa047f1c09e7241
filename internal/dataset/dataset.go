// Package dataset loads the comparison dataset: one case per patient chart
// with the human and AI code sets and the report text both sides worked
// from.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/chartwell-labs/second-opinion/internal/common"
	"github.com/chartwell-labs/second-opinion/internal/model"
)

// Load reads and validates the dataset file.
func Load(path string) ([]model.Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	cases, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", path, err)
	}
	return cases, nil
}

// Read decodes a JSON array of cases, cleans each chart's code lists,
// derives the code partition, and rejects duplicate patient identifiers,
// since results are keyed by patient on write-back.
func Read(r io.Reader) ([]model.Case, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var cases []model.Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if len(cases) == 0 {
		return nil, common.ErrNoCases
	}

	seen := make(map[string]bool, len(cases))
	for i := range cases {
		c := &cases[i]
		c.SutherlandCodes = cleanCodes(c.SutherlandCodes)
		c.AICodes = cleanCodes(c.AICodes)
		c.MatchResult = normalizeMatchResult(c.MatchResult)

		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("case %d: %w", i, err)
		}
		if seen[c.PatientID] {
			return nil, fmt.Errorf("%w: patient %s appears more than once", common.ErrDuplicateEntry, c.PatientID)
		}
		seen[c.PatientID] = true

		c.Partition()
	}

	distribution := make(map[model.MatchResult]int, 3)
	for i := range cases {
		distribution[cases[i].MatchResult]++
	}
	slog.Info("Loaded dataset",
		"cases", len(cases),
		"complete_matches", distribution[model.CompleteMatch],
		"partial_matches", distribution[model.PartialMatch],
		"no_matches", distribution[model.NoMatch])

	return cases, nil
}

// cleanCodes trims whitespace, drops empties, and removes duplicates while
// preserving order. Codes that differ only by the decimal point count as
// duplicates.
func cleanCodes(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(codes))
	cleaned := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		key := model.NormalizeCode(code)
		if seen[key] {
			continue
		}
		seen[key] = true
		cleaned = append(cleaned, code)
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

// normalizeMatchResult accepts spreadsheet-style labels such as
// "Partial Match" alongside the canonical snake_case values.
func normalizeMatchResult(result model.MatchResult) model.MatchResult {
	s := strings.ToLower(strings.TrimSpace(string(result)))
	return model.MatchResult(strings.ReplaceAll(s, " ", "_"))
}

// ByMatchResult returns the cases with the given chart-level match result,
// preserving dataset order.
func ByMatchResult(cases []model.Case, result model.MatchResult) []model.Case {
	matched := make([]model.Case, 0)
	for i := range cases {
		if cases[i].MatchResult == result {
			matched = append(matched, cases[i])
		}
	}
	return matched
}

// WithDiscrepancies returns the cases carrying at least one code that only
// one side assigned, which is the working set for the classification stage.
func WithDiscrepancies(cases []model.Case) []model.Case {
	out := make([]model.Case, 0)
	for i := range cases {
		if len(cases[i].SutherlandOnly) > 0 || len(cases[i].AIOnly) > 0 {
			out = append(out, cases[i])
		}
	}
	return out
}
