package review

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/chartwell-labs/second-opinion/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// promptBuilder renders the stage prompt templates.
type promptBuilder struct {
	templates map[string]*template.Template
}

func newPromptBuilder() (*promptBuilder, error) {
	pb := &promptBuilder{
		templates: make(map[string]*template.Template),
	}

	funcMap := template.FuncMap{
		"join":     strings.Join,
		"truncate": truncate,
	}

	names := []string{
		"classification_system",
		"classification_user",
		"partial_system",
		"partial_user",
		"nomatch_system",
		"nomatch_user",
		"retry_reminder",
	}

	for _, name := range names {
		filename := fmt.Sprintf("templates/%s.tmpl", name)
		tmpl, err := template.New(fmt.Sprintf("%s.tmpl", name)).Funcs(funcMap).ParseFS(templateFS, filename)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pb.templates[name] = tmpl
	}

	return pb, nil
}

func (pb *promptBuilder) render(name string, data any) (string, error) {
	tmpl, ok := pb.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, fmt.Sprintf("%s.tmpl", name), data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// casePromptData is the data every user-facing stage template renders from.
type casePromptData struct {
	PatientID       string
	SutherlandCodes []string
	AICodes         []string
	MissedByAI      []string
	ExtraByAI       []string
	ReportText      string
}

func promptData(c model.Case) casePromptData {
	return casePromptData{
		PatientID:       c.PatientID,
		SutherlandCodes: c.SutherlandCodes,
		AICodes:         c.AICodes,
		MissedByAI:      c.SutherlandOnly,
		ExtraByAI:       c.AIOnly,
		ReportText:      c.ReportText,
	}
}

// reminderData feeds the stricter-JSON retry instruction.
type reminderData struct {
	Reason string
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
