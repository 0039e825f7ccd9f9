package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// StructuredFields holds the procurement record pulled from free text.
// Empty strings and a nil EstimatedValue mean "not found".
type StructuredFields struct {
	TenderNumber     string   `json:"numero_pregao,omitempty"`
	UASG             string   `json:"uasg,omitempty"`
	Organization     string   `json:"orgao,omitempty"`
	Object           string   `json:"objeto,omitempty"`
	EstimatedValue   *float64 `json:"valor_estimado,omitempty"`
	OpeningDate      string   `json:"data_abertura,omitempty"`
	Modality         string   `json:"modalidade,omitempty"`
	DeliveryLocation string   `json:"local_entrega,omitempty"`
	DeliveryDeadline string   `json:"prazo_entrega,omitempty"`
	PaymentTerms     string   `json:"condicoes_pagamento,omitempty"`
	Certifications   []string `json:"certificacoes_exigidas"`
}

// HasEstimatedValue treats zero the same as absent.
func (f StructuredFields) HasEstimatedValue() bool {
	return f.EstimatedValue != nil && *f.EstimatedValue != 0
}

func (f StructuredFields) Value() float64 {
	if f.EstimatedValue == nil {
		return 0
	}
	return *f.EstimatedValue
}

// Table is passed through from the extraction service untouched except
// for the type assigned during classification.
type Table struct {
	ID         int              `json:"table_id"`
	Page       int              `json:"page_number"`
	Headers    []string         `json:"headers,omitempty"`
	Rows       []map[string]any `json:"structured_data,omitempty"`
	NumRows    int              `json:"num_rows"`
	NumCols    int              `json:"num_cols"`
	Confidence float64          `json:"confidence"`
	Type       string           `json:"table_type,omitempty"`
}

// Text renders the table rows as JSON so keyword rules can scan cell names
// and values. Non-ASCII letters are kept as is.
func (t Table) Text() string {
	if len(t.Rows) == 0 {
		return ""
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(t.Rows); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

// Dimensions falls back to the row data when the service did not report sizes.
func (t Table) Dimensions() (rows, cols int) {
	rows, cols = t.NumRows, t.NumCols
	if rows == 0 {
		rows = len(t.Rows)
	}
	if cols == 0 {
		cols = len(t.Headers)
		if cols == 0 && len(t.Rows) > 0 {
			cols = len(t.Rows[0])
		}
	}
	return rows, cols
}

// Confidence is the per-component confidence reported by the extraction service.
type Confidence struct {
	Overall float64 `json:"overall_score"`
	Layout  float64 `json:"layout_score"`
	OCR     float64 `json:"ocr_score"`
	Parse   float64 `json:"parse_score"`
	Table   float64 `json:"table_score"`
}

// DefaultConfidence is used when the service reports no confidence at all.
func DefaultConfidence() Confidence {
	return Confidence{Overall: 0.8, Layout: 0.8, OCR: 0.8, Parse: 0.8, Table: 0.8}
}

// Extraction is the output of stages 1 to 3.
type Extraction struct {
	Markdown   string     `json:"markdown"`
	Text       string     `json:"text"`
	Tables     []Table    `json:"tables"`
	Confidence Confidence `json:"confidence"`
	Pages      int        `json:"pages"`
}

// AnalysisText prefers the markdown rendering and falls back to plain text.
func (e Extraction) AnalysisText() string {
	if strings.TrimSpace(e.Markdown) != "" {
		return e.Markdown
	}
	return e.Text
}
