package prompt

import (
	"strings"
	"text/template"
)

// Defaults used when no language or fallback phrase is configured.
const (
	DefaultLanguage       = "नेपाली"
	DefaultFallbackPhrase = "सन्दर्भमा जानकारी उपलब्ध छैन।"
)

const answerTemplate = `तलका सन्दर्भहरू मात्र प्रयोग गरेर तथ्यमा आधारित छोटो उत्तर {{.Language}} भाषामा लेख।
यदि सन्दर्भमा जानकारी छैन भने '{{.Fallback}}' भन्नुहोस्।

सन्दर्भहरू:
{{.Context}}

प्रश्न: {{.Question}}
उत्तर:`

// Builder renders the grounded-answer instruction.
type Builder struct {
	tmpl     *template.Template
	language string
	fallback string
}

func NewBuilder(language, fallback string) *Builder {
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultFallbackPhrase
	}
	return &Builder{
		tmpl:     template.Must(template.New("answer").Parse(answerTemplate)),
		language: language,
		fallback: fallback,
	}
}

// Fallback returns the phrase the model is told to emit when context is insufficient.
func (b *Builder) Fallback() string { return b.fallback }

// Build embeds context and question verbatim into the instruction.
func (b *Builder) Build(question, context string) string {
	var sb strings.Builder
	// Execute only fails on writer errors or bad templates, neither possible here.
	_ = b.tmpl.Execute(&sb, struct {
		Language, Fallback, Context, Question string
	}{b.language, b.fallback, context, question})
	return sb.String()
}
