// Package prompt maps output types to the prompt templates sent to the
// language model.
package prompt

import (
	"fmt"
	"strings"
)

// OutputType selects the structure of a generated answer.
type OutputType int

const (
	Default OutputType = iota
	Report
	SOP
	Summary
)

// OutputTypes lists every output type in display order.
var OutputTypes = []OutputType{Report, SOP, Summary, Default}

// String returns the user-facing name of the type.
func (t OutputType) String() string {
	switch t {
	case Report:
		return "report"
	case SOP:
		return "sop"
	case Summary:
		return "summary"
	default:
		return "default"
	}
}

// ParseOutputType maps a user string to an output type. Unknown strings map
// to Default and ok is false.
func ParseOutputType(s string) (t OutputType, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "report":
		return Report, true
	case "sop":
		return SOP, true
	case "summary":
		return Summary, true
	case "default", "":
		return Default, true
	default:
		return Default, false
	}
}

// MarshalText encodes the type by name.
func (t OutputType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts any string; unknown names decode to Default.
func (t *OutputType) UnmarshalText(b []byte) error {
	*t, _ = ParseOutputType(string(b))
	return nil
}

// Placeholders substituted by Render.
const (
	ContextPlaceholder  = "{context}"
	QuestionPlaceholder = "{question}"
)

const (
	reportTemplate = "You are an AI assistant for telecom field engineers. Using the context below, " +
		"generate a structured report (minimum 5000 characters) with sections: Title, Problem Description, " +
		"Site Details, Analysis, Issues Identified, and Recommendations based on the query." +
		"\n\nContext: {context}\n\nQuery: {question}"

	sopTemplate = "You are an AI assistant for telecom field engineers. Using the context below, " +
		"generate a Standard Operating Procedure (SOP) (minimum 5000 characters) with sections: Title, " +
		"Purpose, Scope, Procedure Steps, Tools & Equipments, Responsibilities, Safety Guidelines, and " +
		"References based on the query." +
		"\n\nContext: {context}\n\nQuery: {question}"

	summaryTemplate = "You are an AI assistant for telecom field engineers. Using the context below, " +
		"generate a concise summary (minimum 5000 characters) with sections: Network Overview, Key " +
		"Protocols & Standards, Common Issues & Fixes, Safety Guidelines, Contact Info, and Glossary " +
		"based on the query." +
		"\n\nContext: {context}\n\nQuery: {question}"

	defaultTemplate = "You are an AI assistant for telecom field engineers. Provide a response based on " +
		"the context below to help field engineers resolve the issue." +
		"\n\nContext: {context}\n\nQuery: {question}"
)

// Templates resolves output types to template text. The zero value uses the
// built-in templates; overrides replace individual entries.
type Templates struct {
	overrides map[OutputType]string
}

// NewTemplates validates overrides keyed by output type name ("report",
// "sop", "summary", "default"). Every override must contain both
// placeholders.
func NewTemplates(overrides map[string]string) (*Templates, error) {
	t := &Templates{overrides: make(map[OutputType]string)}
	for name, text := range overrides {
		typ, ok := ParseOutputType(name)
		if !ok {
			return nil, fmt.Errorf("template override for unknown output type %q", name)
		}
		if !strings.Contains(text, ContextPlaceholder) || !strings.Contains(text, QuestionPlaceholder) {
			return nil, fmt.Errorf("template override for %s must contain %s and %s",
				typ, ContextPlaceholder, QuestionPlaceholder)
		}
		t.overrides[typ] = text
	}
	return t, nil
}

// Template returns the template text for typ.
func (t *Templates) Template(typ OutputType) string {
	if t != nil {
		if text, ok := t.overrides[typ]; ok {
			return text
		}
	}
	return builtin(typ)
}

// Render fills the template for typ with the retrieved context and the
// user question.
func (t *Templates) Render(typ OutputType, context, question string) string {
	r := strings.NewReplacer(ContextPlaceholder, context, QuestionPlaceholder, question)
	return r.Replace(t.Template(typ))
}

func builtin(typ OutputType) string {
	switch typ {
	case Report:
		return reportTemplate
	case SOP:
		return sopTemplate
	case Summary:
		return summaryTemplate
	case Default:
		return defaultTemplate
	default:
		return defaultTemplate
	}
}
