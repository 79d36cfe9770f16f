package ollama

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// PromptTemplate holds the classification instruction contract. The wording
// must force the model to answer with exactly one category token; anything
// else is rejected by the label parser downstream.
type PromptTemplate struct {
	// Instruction precedes the category list. The rendered prompt appends
	// the categories, the answer constraint and the email content.
	Instruction string            `yaml:"instruction"`
	Categories  map[string]string `yaml:"categories"`
	// MaxContentChars bounds the email content included in the prompt.
	MaxContentChars int `yaml:"max_content_chars"`
}

func DefaultPromptTemplate() *PromptTemplate {
	return &PromptTemplate{
		Instruction: "I need you to classify the following email into one of these categories:",
		Categories: map[string]string{
			"STANDARD_FAQ": "Answerable by standard FAQ, no complex information needed",
			"REQUIRES_RAG": "Requires response by LLM using RAG for more complex questions",
			"CRM_ADDITION": "Sender needs to be added to CRM, appears to be a new contact or lead",
			"NEEDS_INFO":   "More information needed from sender before we can properly respond",
		},
		MaxContentChars: 4000,
	}
}

// LoadPromptTemplate reads a template override from a YAML file. Missing
// fields fall back to the defaults so a partial override stays valid.
func LoadPromptTemplate(path string) (*PromptTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt template: %w", err)
	}
	tmpl := DefaultPromptTemplate()
	if err := yaml.Unmarshal(data, tmpl); err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	if tmpl.Instruction == "" {
		tmpl.Instruction = DefaultPromptTemplate().Instruction
	}
	if len(tmpl.Categories) == 0 {
		tmpl.Categories = DefaultPromptTemplate().Categories
	}
	if tmpl.MaxContentChars <= 0 {
		tmpl.MaxContentChars = DefaultPromptTemplate().MaxContentChars
	}
	return tmpl, nil
}

// categoryOrder keeps the prompt stable across runs.
var categoryOrder = []string{"STANDARD_FAQ", "REQUIRES_RAG", "CRM_ADDITION", "NEEDS_INFO"}

func (t *PromptTemplate) Render(subject, body string) string {
	content := truncate(fmt.Sprintf("Subject: %s\n\n%s", subject, body), t.MaxContentChars)

	var b strings.Builder
	b.WriteString(t.Instruction)
	b.WriteString("\n")
	idx := 1
	for _, name := range categoryOrder {
		desc, ok := t.Categories[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%d. %s: %s\n", idx, name, desc)
		idx++
	}
	var extras []string
	for name := range t.Categories {
		if !contains(categoryOrder, name) {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		fmt.Fprintf(&b, "%d. %s: %s\n", idx, name, t.Categories[name])
		idx++
	}
	b.WriteString("\nPlease respond with ONLY the category name (e.g., \"STANDARD_FAQ\"). Here's the email:\n\n")
	b.WriteString(content)
	return b.String()
}

// truncate cuts s to at most max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
