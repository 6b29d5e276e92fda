package util

import (
	"fmt"
	"strings"
	"text/template"
)

var templateFuncs = template.FuncMap{
	"default": func(fallback, val any) any {
		if val == nil || val == "" {
			return fallback
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []any) string {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, sep)
	},
}

// RenderTemplate renders instructions as a text/template against the
// conversation's auxiliary values. Text without template markers is returned
// unchanged; missing keys render as empty strings.
func RenderTemplate(text string, values map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("instructions").Funcs(templateFuncs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse instructions: %w", err)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, values); err != nil {
		return "", fmt.Errorf("render instructions: %w", err)
	}

	return strings.ReplaceAll(sb.String(), "<no value>", ""), nil
}
