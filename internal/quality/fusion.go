package quality

import (
	"math"
	"strings"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/iago/licitacao-pipeline/internal/rules"
)

const (
	ComponentExtraction   = "extraction_quality"
	ComponentCompleteness = "data_completeness"
	ComponentStructure    = "content_structure"
	ComponentRisk         = "risk_assessment"
	ComponentOpportunity  = "opportunity_identification"
)

var componentOrder = []string{
	ComponentExtraction,
	ComponentCompleteness,
	ComponentStructure,
	ComponentRisk,
	ComponentOpportunity,
}

var componentWeights = map[string]float64{
	ComponentExtraction:   0.30,
	ComponentCompleteness: 0.25,
	ComponentStructure:    0.20,
	ComponentRisk:         0.15,
	ComponentOpportunity:  0.10,
}

// Weights returns a copy of the fixed component weights.
func Weights() map[string]float64 {
	out := make(map[string]float64, len(componentWeights))
	for k, v := range componentWeights {
		out[k] = v
	}
	return out
}

type Fuser struct {
	thresholds rules.Thresholds
}

func NewFuser(set *rules.Set) *Fuser {
	if set == nil {
		set = rules.Default()
	}
	return &Fuser{thresholds: set.Quality.Thresholds}
}

// Fuse combines the extraction confidence, the validation result and the
// risk and opportunity counts into the final graded score.
func (f *Fuser) Fuse(confidence float64, validation domain.ValidationResult, riskCount, opportunityCount int) domain.QualityBreakdown {
	components := map[string]float64{
		ComponentExtraction:   confidence,
		ComponentCompleteness: validation.Completeness,
		ComponentStructure:    validation.Consistency,
		ComponentRisk:         math.Max(0, 1-0.1*float64(riskCount)),
		ComponentOpportunity:  math.Min(1, 0.2*float64(opportunityCount)),
	}

	score := 0.0
	for _, name := range componentOrder {
		score += components[name] * componentWeights[name]
	}

	rounded := make(map[string]float64, len(components))
	for name, value := range components {
		rounded[name] = round3(value)
	}

	grade := f.Grade(score)
	return domain.QualityBreakdown{
		FinalScore:       round3(score),
		Grade:            grade,
		ComponentScores:  rounded,
		ComponentWeights: Weights(),
		Summary: domain.AnalysisSummary{
			TotalRisks:           riskCount,
			TotalOpportunities:   opportunityCount,
			ValidationScore:      validation.Overall,
			ExtractionConfidence: confidence,
		},
		Recommendations: recommendations(score, validation, riskCount, opportunityCount),
	}
}

// Grade maps a score onto the configured cut points, highest first.
func (f *Fuser) Grade(score float64) domain.Grade {
	switch {
	case score >= f.thresholds.Excellent:
		return domain.GradeExcellent
	case score >= f.thresholds.Good:
		return domain.GradeGood
	case score >= f.thresholds.Fair:
		return domain.GradeFair
	default:
		return domain.GradePoor
	}
}

func recommendations(score float64, validation domain.ValidationResult, riskCount, opportunityCount int) []string {
	out := []string{}

	switch {
	case score < 0.6:
		out = append(out,
			"Qualidade geral baixa - revisar processo de extração",
			"Verificar qualidade do documento original",
		)
	case score < 0.8:
		out = append(out, "Qualidade moderada - possível melhoria na extração de dados")
	}

	if validation.Completeness < 0.7 {
		out = append(out, "Baixa completude dos dados - verificar se informações estão disponíveis no documento")
		if len(validation.MissingFields) > 0 {
			out = append(out, "Campos ausentes: "+strings.Join(validation.MissingFields, ", "))
		}
	}

	if validation.Accuracy < 0.8 {
		out = append(out, "Problemas de precisão identificados - revisar dados extraídos")
		if len(validation.Errors) > 0 {
			out = append(out, "Corrigir erros de validação identificados")
		}
	}

	switch {
	case riskCount > 10:
		out = append(out, "Alto número de riscos identificados - análise detalhada recomendada")
	case riskCount == 0:
		out = append(out, "Nenhum risco identificado - verificar se análise está completa")
	}

	switch {
	case opportunityCount == 0:
		out = append(out, "Nenhuma oportunidade identificada - verificar potencial do documento")
	case opportunityCount > 5:
		out = append(out, "Múltiplas oportunidades identificadas - priorizar por valor e probabilidade")
	}

	if len(validation.Errors) == 0 && len(validation.Warnings) == 0 {
		out = append(out, "Processamento executado sem erros ou alertas")
	}
	return out
}

func round3(value float64) float64 {
	return math.Round(value*1000) / 1000
}
