// Package opportunity identifies business opportunities in procurement
// documents and ranks them by expected value.
package opportunity

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/iago/licitacao-pipeline/internal/extraction"
	"github.com/iago/licitacao-pipeline/internal/rules"
)

const quantity = `(\d{1,3}(?:\.\d{3})*|\d+)`

const money = `(\d{1,3}(?:\.\d{3})*(?:,\d{2})?)`

var (
	quantityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`quantidade[:\s]*` + quantity),
		regexp.MustCompile(quantity + `\s+unidades?`),
		regexp.MustCompile(quantity + `\s+itens?`),
		regexp.MustCompile(`lote\s+de\s+` + quantity),
	}
	moneyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`r?\$\s*` + money),
		regexp.MustCompile(money + `\s*reais?`),
		regexp.MustCompile(`valor.*?` + money),
	}
	durationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`renovação\s+por\s+(\d+)`),
		regexp.MustCompile(`prazo\s+de\s+(\d+)\s+anos?`),
		regexp.MustCompile(`vigência\s+de\s+(\d+)\s+anos?`),
		regexp.MustCompile(`período\s+de\s+(\d+)\s+anos?`),
	}
)

// Engine is safe for concurrent use.
type Engine struct {
	rules   rules.OpportunityRules
	printer *message.Printer
	newID   func() string
}

func NewEngine(set *rules.Set) *Engine {
	if set == nil {
		set = rules.Default()
	}
	return &Engine{
		rules:   set.Opportunity,
		printer: message.NewPrinter(language.English),
		newID:   uuid.NewString,
	}
}

type scan struct {
	lower  string
	fields domain.StructuredFields
	tables []domain.Table
	items  []domain.OpportunityItem
}

func (e *Engine) add(s *scan, description string, category domain.OpportunityCategory, likelihood float64, importance domain.Importance, potential *float64, actions ...string) {
	s.items = append(s.items, domain.OpportunityItem{
		ID:             e.newID(),
		Description:    description,
		Category:       category,
		PotentialValue: potential,
		Likelihood:     likelihood,
		Importance:     importance,
		Actions:        append([]string(nil), actions...),
	})
}

// Analyze runs every analysis and returns the opportunities ordered by
// potential value times likelihood, highest first.
func (e *Engine) Analyze(text string, fields domain.StructuredFields, tables []domain.Table) []domain.OpportunityItem {
	s := &scan{lower: strings.ToLower(text), fields: fields, tables: tables, items: []domain.OpportunityItem{}}

	e.volume(s)
	e.value(s)
	e.recurring(s)
	e.strategic(s)
	e.market(s)
	e.technology(s)

	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].Score() > s.items[j].Score()
	})
	return s.items
}

func (e *Engine) volume(s *scan) {
	highest := 0
	for _, pattern := range quantityPatterns {
		for _, match := range pattern.FindAllStringSubmatch(s.lower, -1) {
			n, err := strconv.Atoi(strings.ReplaceAll(match[1], ".", ""))
			if err != nil {
				continue
			}
			highest = max(highest, n)
		}
	}

	if highest > e.rules.VolumeThreshold {
		importance := domain.ImportanceMedium
		if highest > e.rules.HighVolumeThreshold {
			importance = domain.ImportanceHigh
		}
		e.add(s,
			e.printer.Sprintf("Oportunidade de alto volume identificada (até %d unidades)", highest),
			domain.OpportunityHighVolume, 0.8, importance, nil,
			"Avaliar capacidade produtiva para grandes volumes",
			"Negociar preços escalonados por quantidade",
			"Considerar parcerias para atendimento do volume",
			"Verificar prazos de entrega para grandes lotes",
		)
	}

	for _, table := range s.tables {
		if len(table.Rows) == 0 {
			continue
		}
		if rules.ContainsAny(strings.ToLower(table.Text()), e.rules.QuantityTableTerms) {
			e.add(s,
				"Tabela com especificação de quantidades detectada",
				domain.OpportunityHighVolume, 0.7, domain.ImportanceMedium, nil,
				"Analisar detalhadamente as quantidades especificadas",
				"Verificar possibilidade de fornecimento total ou parcial",
				"Avaliar capacidade de atendimento por lotes",
			)
			break
		}
	}
}

// estimatedValue prefers the structured field and otherwise takes the
// largest monetary figure mentioned in the text.
func (e *Engine) estimatedValue(s *scan) float64 {
	if s.fields.HasEstimatedValue() {
		return s.fields.Value()
	}
	highest := 0.0
	for _, pattern := range moneyPatterns {
		for _, match := range pattern.FindAllStringSubmatch(s.lower, -1) {
			if v, ok := extraction.ParseBrazilianNumber(match[1]); ok {
				highest = max(highest, v)
			}
		}
	}
	return highest
}

func (e *Engine) value(s *scan) {
	v := e.estimatedValue(s)
	switch {
	case v >= e.rules.HighValueThreshold:
		e.add(s,
			e.printer.Sprintf("Oportunidade de alto valor identificada (R$ %.2f)", v),
			domain.OpportunityHighValue, 0.9, domain.ImportanceHigh, &v,
			"Priorizar participação no processo licitatório",
			"Formar equipe dedicada para a proposta",
			"Realizar análise detalhada de viabilidade",
			"Considerar parcerias estratégicas se necessário",
		)
	case v >= e.rules.MediumValueThreshold:
		e.add(s,
			e.printer.Sprintf("Oportunidade de valor médio identificada (R$ %.2f)", v),
			domain.OpportunityHighValue, 0.8, domain.ImportanceMedium, &v,
			"Avaliar margem de contribuição esperada",
			"Verificar competitividade da proposta",
			"Analisar custos de participação no certame",
		)
	}
}

func (e *Engine) recurring(s *scan) {
	if rules.ContainsAny(s.lower, e.rules.RecurringTerms) {
		years := 1
		for _, pattern := range durationPatterns {
			for _, match := range pattern.FindAllStringSubmatch(s.lower, -1) {
				if n, err := strconv.Atoi(match[1]); err == nil {
					years = max(years, n)
				}
			}
		}
		importance := domain.ImportanceMedium
		if years > e.rules.LongContractYears {
			importance = domain.ImportanceHigh
		}
		e.add(s,
			"Oportunidade de negócio recorrente identificada (vigência até "+strconv.Itoa(years)+" anos)",
			domain.OpportunityRecurring, 0.7, importance, nil,
			"Avaliar capacidade de fornecimento de longo prazo",
			"Considerar investimentos em capacidade produtiva",
			"Planejar relacionamento de longo prazo com cliente",
			"Verificar cláusulas de reajuste de preços",
		)
	}

	if rules.ContainsAny(s.lower, e.rules.FrameworkTerms) {
		e.add(s,
			"Oportunidade de participação em ata de registro de preços",
			domain.OpportunityRecurring, 0.8, domain.ImportanceHigh, nil,
			"Verificar estimativa de demanda por período",
			"Analisar histórico de consumo do órgão",
			"Preparar estrutura para atendimento sob demanda",
			"Considerar preços competitivos para todo o período",
		)
	}
}

func (e *Engine) strategic(s *scan) {
	if rules.ContainsAny(s.lower, e.rules.StrategicTerms) {
		e.add(s,
			"Oportunidade estratégica identificada - projeto prioritário do órgão",
			domain.OpportunityStrategic, 0.6, domain.ImportanceHigh, nil,
			"Identificar decisores e influenciadores chave",
			"Demonstrar alinhamento com objetivos estratégicos",
			"Destacar diferenciais competitivos",
			"Preparar proposta técnica robusta",
		)
	}

	if rules.ContainsAny(s.lower, e.rules.InnovationTerms) {
		e.add(s,
			"Oportunidade de inovação tecnológica identificada",
			domain.OpportunityStrategic, 0.5, domain.ImportanceHigh, nil,
			"Destacar aspectos inovadores da solução",
			"Demonstrar benefícios de longo prazo",
			"Apresentar casos de sucesso similares",
			"Oferecer suporte técnico especializado",
		)
	}
}

// market matches the organization name against the sector table; the
// first sector found wins.
func (e *Engine) market(s *scan) {
	organization := strings.ToLower(s.fields.Organization)
	if organization == "" {
		return
	}
	for _, sector := range e.rules.Sectors {
		if sector.Keyword == "" || !strings.Contains(organization, sector.Keyword) {
			continue
		}
		e.add(s, sector.Description, domain.OpportunityStrategic, 0.7, domain.Importance(sector.Importance), nil, sector.Actions...)
		return
	}
}

func (e *Engine) technology(s *scan) {
	if rules.ContainsAny(s.lower, e.rules.TechnologyTerms) {
		e.add(s,
			"Oportunidade de fornecimento de tecnologia avançada",
			domain.OpportunityStrategic, 0.6, domain.ImportanceHigh, nil,
			"Destacar expertise tecnológica da empresa",
			"Demonstrar ROI da tecnologia proposta",
			"Oferecer treinamento e suporte técnico",
			"Apresentar roadmap de evolução tecnológica",
		)
	}

	if rules.ContainsAny(s.lower, e.rules.SustainabilityTerms) {
		e.add(s,
			"Oportunidade relacionada à sustentabilidade",
			domain.OpportunityStrategic, 0.7, domain.ImportanceMedium, nil,
			"Destacar credenciais de sustentabilidade",
			"Demonstrar impacto ambiental positivo",
			"Apresentar certificações ambientais",
			"Quantificar benefícios sustentáveis",
		)
	}
}
