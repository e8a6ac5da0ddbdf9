// Package prompt renders the inline-assist prompt template (spec §4.11,
// §9 "Template rendering is abstracted as a pure function (template, data)
// -> string"). text/template's delimiters are the Mustache-family {{ }}
// syntax the design notes call for; no third-party template engine in the
// retrieved dependency set speaks Mustache more directly than this.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Context is the data made available to a rendered prompt template.
type Context struct {
	LanguageID        string
	Text              string
	IncludeWorkspace  bool
	Files             map[string]string // workspace path -> contents
}

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"title": func(s string) string {
		if s == "" {
			return s
		}
		words := strings.Fields(s)
		for i, word := range words {
			if len(word) > 0 {
				words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
			}
		}
		return strings.Join(words, " ")
	},
}

// Render executes tmplStr against ctx. Callers supply the configured prompt
// template string from config.AIConfig.PromptTemplate (one for all languages).
func Render(tmplStr string, ctx Context) (string, error) {
	tmpl, err := template.New("inline-assist").Funcs(funcs).Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parsing prompt template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("rendering prompt template: %w", err)
	}
	return buf.String(), nil
}
