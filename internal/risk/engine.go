// Package risk scans procurement text and structured fields for risk
// indicators and ranks them by criticality.
package risk

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/iago/licitacao-pipeline/internal/rules"
)

var (
	penaltyPattern  = regexp.MustCompile(`multa\s+de\s+(\d+(?:,\d+)?)\s*%`)
	warrantyPattern = regexp.MustCompile(`garantia\s+de\s+(\d+)\s+(ano|mês)`)
	daysPattern     = regexp.MustCompile(`(\d+)\s+dias?`)
	forumPattern    = regexp.MustCompile(`foro\s+da\s+comarca`)
)

// Engine is safe for concurrent use.
type Engine struct {
	rules         rules.RiskRules
	brandPatterns []*regexp.Regexp
	newID         func() string
}

func NewEngine(set *rules.Set) *Engine {
	if set == nil {
		set = rules.Default()
	}
	engine := &Engine{rules: set.Risk, newID: uuid.NewString}
	for _, pattern := range set.Risk.BrandPatterns {
		// Validate already rejected broken patterns.
		engine.brandPatterns = append(engine.brandPatterns, regexp.MustCompile(pattern))
	}
	return engine
}

type scan struct {
	text   string
	lower  string
	fields domain.StructuredFields
	risks  []domain.RiskItem
}

func (s *scan) add(item domain.RiskItem) {
	s.risks = append(s.risks, item)
}

// Analyze runs every rule family and returns the risks ordered by
// criticality, highest first. Ties keep rule evaluation order.
func (e *Engine) Analyze(text string, fields domain.StructuredFields) []domain.RiskItem {
	s := &scan{text: text, lower: strings.ToLower(text), fields: fields, risks: []domain.RiskItem{}}

	e.technical(s)
	e.legal(s)
	e.commercial(s)
	e.logistic(s)
	e.budget(s)

	sort.SliceStable(s.risks, func(i, j int) bool {
		return s.risks[i].Criticality > s.risks[j].Criticality
	})
	return s.risks
}

func (e *Engine) item(description string, category domain.RiskCategory, probability, impact float64, mitigations ...string) domain.RiskItem {
	return domain.NewRiskItem(e.newID(), description, category, probability, impact, mitigations)
}

func (e *Engine) technical(s *scan) {
	if rules.ContainsAny(s.lower, e.rules.RestrictiveSpecTerms) {
		s.add(e.item(
			"Especificações técnicas podem ser restritivas à concorrência",
			domain.RiskTechnical, 0.7, 0.8,
			"Revisar especificações para aceitar produtos similares",
			"Permitir equivalência técnica comprovada",
			"Ampliar critérios de aceitação",
		))
	}

	// Brand names are capitalized, so these run on the original text.
	for _, pattern := range e.brandPatterns {
		if len(pattern.FindAllStringIndex(s.text, -1)) > e.rules.BrandMatchThreshold {
			s.add(e.item(
				"Especificação de marcas/modelos específicos pode restringir competitividade",
				domain.RiskTechnical, 0.8, 0.7,
				"Substituir marcas por especificações técnicas",
				"Incluir cláusula 'ou similar'",
				"Definir critérios objetivos de equivalência",
			))
			break
		}
	}

	if rules.ContainsAny(s.lower, e.rules.IntegrationTerms) {
		s.add(e.item(
			"Requisitos de integração podem aumentar complexidade e custos",
			domain.RiskTechnical, 0.6, 0.7,
			"Definir claramente interfaces e padrões",
			"Prever testes de integração",
			"Estabelecer responsabilidades técnicas",
		))
	}
}

func (e *Engine) legal(s *scan) {
	if penalty, ok := maxPenalty(s.lower); ok && penalty > e.rules.PenaltyPercentThreshold {
		s.add(e.item(
			"Penalidades elevadas identificadas (até "+strconv.FormatFloat(penalty, 'f', -1, 64)+"%)",
			domain.RiskLegal, 0.5, 0.9,
			"Revisar valores das penalidades",
			"Estabelecer penalidades proporcionais",
			"Incluir critérios de atenuação",
		))
	}

	if rules.ContainsAny(s.lower, e.rules.LiabilityTerms) {
		s.add(e.item(
			"Cláusulas de responsabilidade muito restritivas para o fornecedor",
			domain.RiskLegal, 0.7, 0.8,
			"Revisar cláusulas de responsabilidade",
			"Estabelecer limites de responsabilidade",
			"Definir excludentes de responsabilidade",
		))
	}

	if forumPattern.MatchString(s.lower) {
		s.add(e.item(
			"Foro específico pode dificultar defesa judicial",
			domain.RiskLegal, 0.4, 0.6,
			"Verificar viabilidade do foro escolhido",
			"Avaliar custos de eventual litígio",
			"Considerar cláusula de arbitragem",
		))
	}

	if rules.ContainsAny(s.lower, e.rules.ComplianceTerms) {
		s.add(e.item(
			"Requisitos regulatórios específicos podem limitar fornecedores",
			domain.RiskLegal, 0.6, 0.7,
			"Verificar disponibilidade de certificações",
			"Prever prazo para adequação regulatória",
			"Aceitar certificações equivalentes",
		))
	}
}

func maxPenalty(lower string) (float64, bool) {
	found := false
	highest := 0.0
	for _, match := range penaltyPattern.FindAllStringSubmatch(lower, -1) {
		value, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", "."), 64)
		if err != nil {
			continue
		}
		if !found || value > highest {
			highest = value
			found = true
		}
	}
	return highest, found
}

func (e *Engine) commercial(s *scan) {
	payment := strings.ToLower(s.fields.PaymentTerms)
	if e.rules.UpfrontPaymentTerm != "" && strings.Contains(payment, e.rules.UpfrontPaymentTerm) {
		s.add(e.item(
			"Pagamento à vista pode limitar participação de fornecedores",
			domain.RiskCommercial, 0.6, 0.7,
			"Considerar parcelamento do pagamento",
			"Avaliar impacto no preço final",
			"Verificar capacidade financeira dos fornecedores",
		))
	}

	if rules.ContainsAny(s.lower, e.rules.SingleSupplierTerms) {
		s.add(e.item(
			"Indicadores de fornecedor único ou exclusividade",
			domain.RiskCommercial, 0.8, 0.9,
			"Pesquisar mercado para identificar alternativas",
			"Verificar justificativa para exclusividade",
			"Considerar contratação por lotes",
		))
	}

	if s.fields.HasEstimatedValue() && s.fields.Value() > e.rules.HighValueThreshold {
		s.add(e.item(
			"Valor elevado requer atenção especial na análise de mercado",
			domain.RiskCommercial, 0.5, 0.8,
			"Realizar pesquisa ampla de preços",
			"Considerar parcelamento da contratação",
			"Avaliar viabilidade orçamentária",
		))
	}

	if !strings.Contains(s.lower, "garantia") {
		return
	}
	for _, match := range warrantyPattern.FindAllStringSubmatch(s.lower, -1) {
		period, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		months := period
		if match[2] == "ano" {
			months = period * 12
		}
		if months <= e.rules.WarrantyMonthsThreshold {
			continue
		}
		s.add(e.item(
			"Período de garantia extenso ("+strconv.Itoa(period)+" "+pluralUnit(match[2])+") pode impactar custos",
			domain.RiskCommercial, 0.6, 0.6,
			"Avaliar custo da garantia estendida",
			"Verificar padrões do mercado",
			"Considerar garantia escalonada",
		))
		break
	}
}

func pluralUnit(unit string) string {
	if unit == "mês" {
		return "meses"
	}
	return unit + "s"
}

func (e *Engine) logistic(s *scan) {
	if deadline := strings.ToLower(s.fields.DeliveryDeadline); deadline != "" {
		if match := daysPattern.FindStringSubmatch(deadline); match != nil {
			days, err := strconv.Atoi(match[1])
			if err == nil && days <= e.rules.ShortDeliveryDays {
				s.add(e.item(
					"Prazo de entrega muito curto ("+strconv.Itoa(days)+" dias)",
					domain.RiskLogistic, 0.8, 0.7,
					"Verificar viabilidade do prazo com fornecedores",
					"Considerar entregas parciais",
					"Avaliar estoque disponível no mercado",
				))
			}
		}
	}

	if location := strings.ToLower(s.fields.DeliveryLocation); location != "" && rules.ContainsAny(location, e.rules.RemoteLocationTerms) {
		s.add(e.item(
			"Local de entrega em área remota pode encarecer logística",
			domain.RiskLogistic, 0.7, 0.6,
			"Prever custos adicionais de transporte",
			"Verificar disponibilidade de transportadoras",
			"Considerar pontos de entrega alternativos",
		))
	}

	if rules.ContainsAny(s.lower, e.rules.SpecialHandlingTerms) {
		s.add(e.item(
			"Produtos requerem manuseio/transporte especial",
			domain.RiskLogistic, 0.6, 0.7,
			"Verificar capacidade logística especializada",
			"Prever custos adicionais de transporte",
			"Estabelecer controles de qualidade",
		))
	}

	if rules.ContainsAny(s.lower, e.rules.InstallationTerms) {
		s.add(e.item(
			"Produtos requerem instalação/configuração especializada",
			domain.RiskLogistic, 0.5, 0.6,
			"Definir responsabilidades de instalação",
			"Prever treinamento da equipe",
			"Estabelecer critérios de aceite",
		))
	}
}

// budget flags a document with no usable estimated value.
func (e *Engine) budget(s *scan) {
	if s.fields.HasEstimatedValue() {
		return
	}
	s.add(e.item(
		"Valor estimado não identificado no documento",
		domain.RiskCommercial, 0.9, 0.8,
		"Localizar informações de orçamento",
		"Solicitar esclarecimentos sobre valores",
		"Realizar pesquisa de mercado independente",
	))
}
