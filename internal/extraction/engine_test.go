package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/licitacao-pipeline/internal/domain"
)

const sampleNotice = `PREGÃO ELETRÔNICO Nº 12/2024
UASG: 986531
Órgão: Secretaria Municipal de Saúde
Objeto: Aquisição de equipamentos hospitalares
Valor estimado: R$ 1.234.567,89
Data de abertura: 15/03/2024
Modalidade: Pregão Eletrônico
Local de entrega: Almoxarifado Central
Prazo de entrega: 30 dias corridos
Condições de pagamento: 30 dias após o aceite
Certificação: ISO 9001
`

func TestExtractFindsAllFields(t *testing.T) {
	fields := NewEngine(nil).Extract(sampleNotice)

	assert.Equal(t, "12/2024", fields.TenderNumber)
	assert.Equal(t, "986531", fields.UASG)
	assert.Equal(t, "Secretaria Municipal de Saúde", fields.Organization)
	assert.Equal(t, "Aquisição de equipamentos hospitalares", fields.Object)
	require.NotNil(t, fields.EstimatedValue)
	assert.InDelta(t, 1234567.89, *fields.EstimatedValue, 0.001)
	assert.Equal(t, "15/03/2024", fields.OpeningDate)
	assert.Equal(t, "Pregão Eletrônico", fields.Modality)
	assert.Equal(t, "Almoxarifado Central", fields.DeliveryLocation)
	assert.Equal(t, "30 dias corridos", fields.DeliveryDeadline)
	assert.Equal(t, "30 dias após o aceite", fields.PaymentTerms)
	assert.Contains(t, fields.Certifications, "ISO 9001")
}

func TestExtractLeavesMissingFieldsEmpty(t *testing.T) {
	fields := NewEngine(nil).Extract("texto sem nenhuma informação relevante")

	assert.Empty(t, fields.TenderNumber)
	assert.Empty(t, fields.UASG)
	assert.Nil(t, fields.EstimatedValue)
	assert.NotNil(t, fields.Certifications)
	assert.Empty(t, fields.Certifications)
}

func TestExtractUASGNeedsSixDigits(t *testing.T) {
	fields := NewEngine(nil).Extract("UASG 12345 sem código completo")
	assert.Empty(t, fields.UASG)
}

func TestExtractFirstMatchingPatternWins(t *testing.T) {
	text := "Orçamento: R$ 500,00\nValor estimado: R$ 2.000,00"
	fields := NewEngine(nil).Extract(text)

	require.NotNil(t, fields.EstimatedValue)
	assert.InDelta(t, 2000.0, *fields.EstimatedValue, 0.001)
}

func TestExtractStopsAtMatchEvenWhenAmountIsUnparseable(t *testing.T) {
	text := "Valor estimado: ,.\nOrçamento: R$ 500,00"
	fields := NewEngine(nil).Extract(text)

	assert.Nil(t, fields.EstimatedValue)
}

func TestExtractDeduplicatesCertifications(t *testing.T) {
	text := "Certificado: selo verde\nCertificado: selo verde\n"
	fields := NewEngine(nil).Extract(text)

	assert.Equal(t, []string{"selo verde"}, fields.Certifications)
}

func TestFieldOrder(t *testing.T) {
	order := NewEngine(nil).FieldOrder()
	require.Len(t, order, 10)
	assert.Equal(t, "numero_pregao", order[0])
	assert.Equal(t, "condicoes_pagamento", order[9])
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{raw: "1.234.567,89", want: 1234567.89, ok: true},
		{raw: "2.000,00", want: 2000, ok: true},
		{raw: "50", want: 50, ok: true},
		{raw: "", ok: false},
		{raw: ".,", ok: false},
		{raw: "abc", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseAmount(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0.0001)
			}
		})
	}
}

func TestParseBrazilianNumber(t *testing.T) {
	got, ok := ParseBrazilianNumber("1.500.000,50")
	require.True(t, ok)
	assert.InDelta(t, 1500000.50, got, 0.0001)

	_, ok = ParseBrazilianNumber("x")
	assert.False(t, ok)
}

func productTable() domain.Table {
	return domain.Table{
		ID:      1,
		Headers: []string{"item", "descrição", "quantidade", "preço"},
		Rows: []map[string]any{
			{"item": "1", "descrição": "Monitor multiparamétrico", "quantidade": "10", "preço": "1.500,00"},
			{"item": "2", "descrição": "Bomba de infusão", "quantidade": "20", "preço": "3.000,00"},
		},
	}
}

func TestProductTableDetection(t *testing.T) {
	engine := NewEngine(nil)
	table := productTable()

	require.True(t, engine.IsProductTable(table))

	structured := engine.StructureProductTable(table)
	assert.Equal(t, "produtos_servicos", structured.Type)
	assert.Equal(t, 2, structured.EstimatedProducts)
	assert.True(t, structured.HasPrices)
	assert.False(t, structured.HasSpecifications)
	assert.Equal(t, 0.8, structured.Confidence)

	plain := domain.Table{ID: 2, Rows: []map[string]any{{"data": "01/02/2024", "evento": "abertura"}}}
	assert.False(t, engine.IsProductTable(plain))
	assert.Len(t, engine.ProductTables([]domain.Table{table, plain}), 1)
}

func TestClassifyTableComplexity(t *testing.T) {
	engine := NewEngine(nil)

	small := engine.ClassifyTable(productTable())
	assert.Equal(t, "produtos_servicos", small.Type)
	assert.Equal(t, "low", small.Complexity)
	assert.Equal(t, 2, small.Rows)
	assert.Equal(t, 4, small.Cols)
	assert.True(t, small.HasHeaders)

	medium := engine.ClassifyTable(domain.Table{NumRows: 5, NumCols: 4})
	assert.Equal(t, "medium", medium.Complexity)
	assert.Equal(t, "geral", medium.Type)

	large := engine.ClassifyTable(domain.Table{NumRows: 20, NumCols: 5})
	assert.Equal(t, "high", large.Complexity)
}

func TestClassify(t *testing.T) {
	classification := NewEngine(nil).Classify(sampleNotice, []domain.Table{productTable()})

	assert.Equal(t, "edital", classification.DocumentType)
	assert.Len(t, classification.Tables, 1)
	assert.Greater(t, classification.ComplexityScore, 0.0)
	assert.LessOrEqual(t, classification.ComplexityScore, 1.0)

	names := make([]string, 0, len(classification.KeySections))
	for _, section := range classification.KeySections {
		names = append(names, section.Name)
	}
	assert.Contains(t, names, "Objeto/Finalidade")
	assert.Contains(t, names, "Pagamento")
	assert.NotContains(t, names, "Garantia")
}

func TestDocumentTypeFallback(t *testing.T) {
	assert.Equal(t, "documento_generico", NewEngine(nil).DocumentType("xyz"))
}

func TestKeySectionConfidenceCaps(t *testing.T) {
	sections := KeySections("prazo prazo prazo prazo")
	require.Len(t, sections, 1)
	assert.Equal(t, "Prazos", sections[0].Name)
	assert.Equal(t, 4, sections[0].Occurrences)
	assert.Equal(t, 1.0, sections[0].Confidence)
}

func TestAssessLanguage(t *testing.T) {
	high := AssessLanguage("Conforme norma 123.")
	assert.Equal(t, "high", high.EstimatedQuality)
	assert.Equal(t, 3, high.WordCount)

	medium := AssessLanguage("sem numeros")
	assert.Equal(t, "medium", medium.EstimatedQuality)
	assert.False(t, medium.HasNumbers)

	empty := AssessLanguage("")
	assert.Equal(t, 0.0, empty.AvgWordLength)
}

func TestComplexityScoreCapsAtOne(t *testing.T) {
	text := ""
	for i := 0; i < 200; i++ {
		text += "tabela norma. "
	}
	assert.Equal(t, 1.0, ComplexityScore(text))
}
