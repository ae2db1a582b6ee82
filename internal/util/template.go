package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

var templateFuncs = template.FuncMap{
	"default": func(def, val any) any {
		if val == nil || val == "" {
			return def
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// RenderTemplate renders text as a text/template against fields. Text without
// template markers is returned unchanged. Missing keys render as the empty
// string.
func RenderTemplate(text string, fields map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("instructions").
		Option("missingkey=zero").
		Funcs(templateFuncs).
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, fields); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
