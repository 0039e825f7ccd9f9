// Package extraction turns the raw text of a procurement document into
// structured fields using ordered pattern rules, and classifies the
// document and its tables.
package extraction

import (
	"regexp"
	"strings"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/iago/licitacao-pipeline/internal/rules"
)

// fieldRule assigns one field from the first pattern that matches. Once a
// pattern matches, the remaining patterns are not evaluated, even when the
// setter rejects the captured value.
type fieldRule struct {
	field    string
	patterns []*regexp.Regexp
	set      func(fields *domain.StructuredFields, captured string)
}

// Engine is safe for concurrent use; it holds only compiled patterns and
// read-only rule data.
type Engine struct {
	rules          rules.ExtractionRules
	fieldRules     []fieldRule
	certifications []*regexp.Regexp
}

func NewEngine(set *rules.Set) *Engine {
	if set == nil {
		set = rules.Default()
	}
	engine := &Engine{
		rules:      set.Extraction,
		fieldRules: defaultFieldRules(),
	}
	for _, keyword := range set.Extraction.CertificationKeywords {
		pattern := `(?i)` + regexp.QuoteMeta(keyword) + `[:\-\s]*([^\n\r]+)`
		engine.certifications = append(engine.certifications, regexp.MustCompile(pattern))
	}
	return engine
}

func patterns(expressions ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(expressions))
	for _, expression := range expressions {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+expression))
	}
	return compiled
}

const restOfLine = `[:\-\s]+([^\n\r]+)`

func defaultFieldRules() []fieldRule {
	return []fieldRule{
		{
			field:    "numero_pregao",
			patterns: patterns(`pregão.*?(\d{4}/\d{4}|\d+/\d{4})`),
			set:      func(f *domain.StructuredFields, v string) { f.TenderNumber = v },
		},
		{
			field:    "uasg",
			patterns: patterns(`uasg.*?(\d{6})`),
			set:      func(f *domain.StructuredFields, v string) { f.UASG = v },
		},
		{
			field:    "orgao",
			patterns: patterns(`órgão`+restOfLine, `entidade`+restOfLine, `unidade`+restOfLine),
			set:      func(f *domain.StructuredFields, v string) { f.Organization = strings.TrimSpace(v) },
		},
		{
			field:    "objeto",
			patterns: patterns(`objeto`+restOfLine, `descrição`+restOfLine, `finalidade`+restOfLine),
			set:      func(f *domain.StructuredFields, v string) { f.Object = strings.TrimSpace(v) },
		},
		{
			field: "valor_estimado",
			patterns: patterns(
				`valor\s+estimado[:\-\s]+r?\$?\s*([\d.,]+)`,
				`orçamento[:\-\s]+r?\$?\s*([\d.,]+)`,
				`preço\s+máximo[:\-\s]+r?\$?\s*([\d.,]+)`,
			),
			set: func(f *domain.StructuredFields, v string) {
				if amount, ok := ParseAmount(v); ok {
					f.EstimatedValue = &amount
				}
			},
		},
		{
			field: "data_abertura",
			patterns: patterns(
				`data\s+de\s+abertura[:\-\s]+(\d{1,2}/\d{1,2}/\d{4})`,
				`abertura[:\-\s]+(\d{1,2}/\d{1,2}/\d{4})`,
				`data[:\-\s]+(\d{1,2}/\d{1,2}/\d{4})`,
			),
			set: func(f *domain.StructuredFields, v string) { f.OpeningDate = v },
		},
		{
			field:    "modalidade",
			patterns: patterns(`modalidade`+restOfLine, `tipo\s+de\s+licitação`+restOfLine),
			set:      func(f *domain.StructuredFields, v string) { f.Modality = strings.TrimSpace(v) },
		},
		{
			field:    "local_entrega",
			patterns: patterns(`local\s+de\s+entrega`+restOfLine, `entrega`+restOfLine, `destino`+restOfLine),
			set:      func(f *domain.StructuredFields, v string) { f.DeliveryLocation = strings.TrimSpace(v) },
		},
		{
			field:    "prazo_entrega",
			patterns: patterns(`prazo\s+de\s+entrega`+restOfLine, `prazo`+restOfLine, `tempo\s+de\s+entrega`+restOfLine),
			set:      func(f *domain.StructuredFields, v string) { f.DeliveryDeadline = strings.TrimSpace(v) },
		},
		{
			field: "condicoes_pagamento",
			patterns: patterns(
				`condições\s+de\s+pagamento`+restOfLine,
				`pagamento`+restOfLine,
				`forma\s+de\s+pagamento`+restOfLine,
			),
			set: func(f *domain.StructuredFields, v string) { f.PaymentTerms = strings.TrimSpace(v) },
		},
	}
}

// Extract applies every field rule to text. Fields without a match stay empty.
func (e *Engine) Extract(text string) domain.StructuredFields {
	fields := domain.StructuredFields{Certifications: []string{}}
	for _, rule := range e.fieldRules {
		for _, pattern := range rule.patterns {
			match := pattern.FindStringSubmatch(text)
			if match == nil {
				continue
			}
			rule.set(&fields, match[1])
			break
		}
	}

	seen := make(map[string]struct{})
	for _, pattern := range e.certifications {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			certification := strings.TrimSpace(match[1])
			if certification == "" {
				continue
			}
			if _, ok := seen[certification]; ok {
				continue
			}
			seen[certification] = struct{}{}
			fields.Certifications = append(fields.Certifications, certification)
		}
	}
	return fields
}

// FieldOrder lists the fields in the order their rules are evaluated.
func (e *Engine) FieldOrder() []string {
	order := make([]string, 0, len(e.fieldRules))
	for _, rule := range e.fieldRules {
		order = append(order, rule.field)
	}
	return order
}
