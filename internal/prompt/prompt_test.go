package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutputType(t *testing.T) {
	tests := []struct {
		in     string
		want   OutputType
		wantOK bool
	}{
		{"report", Report, true},
		{"SOP", SOP, true},
		{" summary ", Summary, true},
		{"default", Default, true},
		{"", Default, true},
		{"essay", Default, false},
	}

	for _, tt := range tests {
		got, ok := ParseOutputType(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
	}
}

func TestOutputTypeStringRoundTrip(t *testing.T) {
	for _, typ := range OutputTypes {
		parsed, ok := ParseOutputType(typ.String())
		require.True(t, ok)
		assert.Equal(t, typ, parsed)
	}
}

func TestOutputTypeJSON(t *testing.T) {
	data, err := json.Marshal(map[string]OutputType{"type": SOP})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"sop"}`, string(data))

	var decoded struct{ Type OutputType }
	require.NoError(t, json.Unmarshal([]byte(`{"Type":"essay"}`), &decoded))
	assert.Equal(t, Default, decoded.Type)
}

func TestTemplates_BuiltinSections(t *testing.T) {
	var tmpl *Templates

	assert.Contains(t, tmpl.Template(Report), "Issues Identified, and Recommendations")
	assert.Contains(t, tmpl.Template(SOP), "Tools & Equipments")
	assert.Contains(t, tmpl.Template(Summary), "Contact Info, and Glossary")
	assert.Contains(t, tmpl.Template(Default), "help field engineers resolve the issue")

	for _, typ := range OutputTypes {
		text := tmpl.Template(typ)
		assert.True(t, strings.HasSuffix(text, "Context: {context}\n\nQuery: {question}"), typ.String())
	}
}

func TestTemplates_Render(t *testing.T) {
	tmpl, err := NewTemplates(nil)
	require.NoError(t, err)

	out := tmpl.Render(SOP, "Check the rectifier.", "How to reset the DC rectifier?")
	assert.Contains(t, out, "Context: Check the rectifier.\n\nQuery: How to reset the DC rectifier?")
	assert.NotContains(t, out, ContextPlaceholder)
}

func TestNewTemplates_Overrides(t *testing.T) {
	tmpl, err := NewTemplates(map[string]string{"summary": "S {context} | {question}"})
	require.NoError(t, err)

	assert.Equal(t, "S ctx | q", tmpl.Render(Summary, "ctx", "q"))
	assert.Equal(t, reportTemplate, tmpl.Template(Report))

	_, err = NewTemplates(map[string]string{"essay": "{context} {question}"})
	assert.Error(t, err)

	_, err = NewTemplates(map[string]string{"report": "no placeholders"})
	assert.Error(t, err)
}
