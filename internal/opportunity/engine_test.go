package opportunity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/licitacao-pipeline/internal/domain"
)

func value(v float64) *float64 { return &v }

func find(items []domain.OpportunityItem, description string) (domain.OpportunityItem, bool) {
	for _, item := range items {
		if item.Description == description {
			return item, true
		}
	}
	return domain.OpportunityItem{}, false
}

func TestAnalyzeEmptyInput(t *testing.T) {
	items := NewEngine(nil).Analyze("", domain.StructuredFields{}, nil)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestVolumeOpportunity(t *testing.T) {
	engine := NewEngine(nil)

	items := engine.Analyze("fornecimento de 12.000 unidades e lote de 500", domain.StructuredFields{}, nil)
	item, ok := find(items, "Oportunidade de alto volume identificada (até 12,000 unidades)")
	require.True(t, ok)
	assert.Equal(t, domain.OpportunityHighVolume, item.Category)
	assert.Equal(t, domain.ImportanceHigh, item.Importance)
	assert.Nil(t, item.PotentialValue)
	assert.Len(t, item.Actions, 4)

	items = engine.Analyze("quantidade: 1.500", domain.StructuredFields{}, nil)
	item, ok = find(items, "Oportunidade de alto volume identificada (até 1,500 unidades)")
	require.True(t, ok)
	assert.Equal(t, domain.ImportanceMedium, item.Importance)

	items = engine.Analyze("quantidade: 1.000", domain.StructuredFields{}, nil)
	assert.Empty(t, items)
}

func TestQuantityTableFiresOnce(t *testing.T) {
	tables := []domain.Table{
		{ID: 1},
		{ID: 2, Rows: []map[string]any{{"qtd": 10}}},
		{ID: 3, Rows: []map[string]any{{"quantidade": 20}}},
	}
	items := NewEngine(nil).Analyze("", domain.StructuredFields{}, tables)

	require.Len(t, items, 1)
	assert.Equal(t, "Tabela com especificação de quantidades detectada", items[0].Description)
}

func TestValueTiersUseStructuredValue(t *testing.T) {
	engine := NewEngine(nil)

	items := engine.Analyze("", domain.StructuredFields{EstimatedValue: value(1234567.89)}, nil)
	require.Len(t, items, 1)
	assert.Equal(t, "Oportunidade de alto valor identificada (R$ 1,234,567.89)", items[0].Description)
	assert.Equal(t, domain.ImportanceHigh, items[0].Importance)
	require.NotNil(t, items[0].PotentialValue)
	assert.InDelta(t, 1234567.89, *items[0].PotentialValue, 1e-6)

	items = engine.Analyze("", domain.StructuredFields{EstimatedValue: value(250000)}, nil)
	require.Len(t, items, 1)
	assert.Equal(t, "Oportunidade de valor médio identificada (R$ 250,000.00)", items[0].Description)
	assert.Equal(t, 0.8, items[0].Likelihood)

	assert.Empty(t, engine.Analyze("", domain.StructuredFields{EstimatedValue: value(99999)}, nil))
}

func TestValueFallsBackToText(t *testing.T) {
	items := NewEngine(nil).Analyze("orçamento total de R$ 150.000,00 para o lote", domain.StructuredFields{}, nil)

	require.Len(t, items, 1)
	require.NotNil(t, items[0].PotentialValue)
	assert.InDelta(t, 150000.0, *items[0].PotentialValue, 1e-6)
}

func TestRecurringDuration(t *testing.T) {
	items := NewEngine(nil).Analyze("admite prorrogação com vigência de 5 anos", domain.StructuredFields{}, nil)

	item, ok := find(items, "Oportunidade de negócio recorrente identificada (vigência até 5 anos)")
	require.True(t, ok)
	assert.Equal(t, domain.ImportanceHigh, item.Importance)

	items = NewEngine(nil).Analyze("admite prorrogação", domain.StructuredFields{}, nil)
	item, ok = find(items, "Oportunidade de negócio recorrente identificada (vigência até 1 anos)")
	require.True(t, ok)
	assert.Equal(t, domain.ImportanceMedium, item.Importance)
}

func TestFrameworkAgreement(t *testing.T) {
	items := NewEngine(nil).Analyze("acordo quadro", domain.StructuredFields{}, nil)
	require.Len(t, items, 1)
	assert.Equal(t, domain.OpportunityRecurring, items[0].Category)
	assert.Equal(t, 0.8, items[0].Likelihood)
}

func TestMarketSectorFirstMatchWins(t *testing.T) {
	fields := domain.StructuredFields{Organization: "Secretaria de Saúde e Educação"}
	items := NewEngine(nil).Analyze("", fields, nil)

	require.Len(t, items, 1)
	assert.Equal(t, "Oportunidade no setor de saúde pública", items[0].Description)
	assert.Equal(t, domain.OpportunityStrategic, items[0].Category)
	assert.Equal(t, domain.ImportanceHigh, items[0].Importance)
	assert.Len(t, items[0].Actions, 3)
}

func TestTechnologyAndSustainability(t *testing.T) {
	items := NewEngine(nil).Analyze("plataforma em nuvem com eficiência energética", domain.StructuredFields{}, nil)

	_, tech := find(items, "Oportunidade de fornecimento de tecnologia avançada")
	_, green := find(items, "Oportunidade relacionada à sustentabilidade")
	assert.True(t, tech)
	assert.True(t, green)
}

func TestAnalyzeSortsByScore(t *testing.T) {
	text := "fornecimento de 20.000 unidades, projeto prioritário, ata de registro de preços"
	items := NewEngine(nil).Analyze(text, domain.StructuredFields{EstimatedValue: value(500000)}, nil)

	require.NotEmpty(t, items)
	assert.Equal(t, domain.OpportunityHighValue, items[0].Category)
	for i := 1; i < len(items); i++ {
		assert.GreaterOrEqual(t, items[i-1].Score(), items[i].Score())
	}
}
