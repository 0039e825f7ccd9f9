// Package quality validates extracted procurement data and fuses the
// pipeline's partial scores into a single graded quality breakdown.
package quality

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/iago/licitacao-pipeline/internal/extraction"
	"github.com/iago/licitacao-pipeline/internal/rules"
)

const (
	maxPlausibleValue  = 100_000_000
	minTableValue      = 1000
	maxValueDeviation  = 0.5
	minOrganizationLen = 5

	completenessWeight = 0.4
	accuracyWeight     = 0.4
	consistencyWeight  = 0.2
)

var (
	uasgPattern         = regexp.MustCompile(`^\d{6}$`)
	datePattern         = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)
	tenderNumberPattern = regexp.MustCompile(`^\d+/\d{4}$`)
	tableValuePattern   = regexp.MustCompile(`(\d{1,3}(?:\.\d{3})*(?:,\d{2})?)`)

	financialTerms = []string{"valor", "preço", "custo"}
)

type Validator struct {
	required []string
	printer  *message.Printer
}

func NewValidator(set *rules.Set) *Validator {
	if set == nil {
		set = rules.Default()
	}
	return &Validator{
		required: append([]string(nil), set.Quality.RequiredFields...),
		printer:  message.NewPrinter(language.English),
	}
}

// assessment is the outcome of one family of checks.
type assessment struct {
	score    float64
	checks   int
	errors   []string
	warnings []string
}

func (a *assessment) finish(issues int) {
	a.score = 1.0
	if a.checks > 0 {
		a.score = float64(a.checks-issues) / float64(a.checks)
	}
}

// Validate scores completeness, accuracy and consistency of the extracted
// fields. Errors and warnings are advisory and never abort the pipeline.
func (v *Validator) Validate(fields domain.StructuredFields, tables []domain.Table, _ []domain.RiskItem) domain.ValidationResult {
	missing, completenessWarnings := v.completeness(fields)
	completeness := float64(len(v.required)-len(missing)) / float64(max(len(v.required), 1))
	accuracy := v.accuracy(fields)
	consistency := v.consistency(fields, tables)

	result := domain.ValidationResult{
		Completeness:  completeness,
		Accuracy:      accuracy.score,
		Consistency:   consistency.score,
		Errors:        append(append([]string{}, accuracy.errors...), consistency.errors...),
		Warnings:      append(append(completenessWarnings, accuracy.warnings...), consistency.warnings...),
		MissingFields: missing,
		Details: domain.ValidationDetails{
			TotalFieldsAnalyzed:        len(v.required),
			FieldsWithData:             len(v.required) - len(missing),
			AccuracyChecksPerformed:    accuracy.checks,
			ConsistencyChecksPerformed: consistency.checks,
		},
	}
	result.Overall = completeness*completenessWeight + accuracy.score*accuracyWeight + consistency.score*consistencyWeight
	return result
}

func fieldValue(fields domain.StructuredFields, name string) (string, bool) {
	switch name {
	case "numero_pregao":
		return fields.TenderNumber, true
	case "uasg":
		return fields.UASG, true
	case "orgao":
		return fields.Organization, true
	case "objeto":
		return fields.Object, true
	case "data_abertura":
		return fields.OpeningDate, true
	case "modalidade":
		return fields.Modality, true
	case "local_entrega":
		return fields.DeliveryLocation, true
	case "prazo_entrega":
		return fields.DeliveryDeadline, true
	case "condicoes_pagamento":
		return fields.PaymentTerms, true
	default:
		return "", false
	}
}

func (v *Validator) completeness(fields domain.StructuredFields) (missing, warnings []string) {
	missing = []string{}
	warnings = []string{}
	for _, name := range v.required {
		if name == "valor_estimado" {
			if !fields.HasEstimatedValue() {
				missing = append(missing, name)
			}
			continue
		}
		value, _ := fieldValue(fields, name)
		switch {
		case value == "":
			missing = append(missing, name)
		case strings.TrimSpace(value) == "":
			missing = append(missing, name)
			warnings = append(warnings, "Campo '"+name+"' está vazio")
		}
	}

	if fields.DeliveryLocation == "" {
		warnings = append(warnings, "Local de entrega não identificado")
	}
	if fields.DeliveryDeadline == "" {
		warnings = append(warnings, "Prazo de entrega não identificado")
	}
	if fields.PaymentTerms == "" {
		warnings = append(warnings, "Condições de pagamento não identificadas")
	}
	return missing, warnings
}

// accuracy counts an issue only for a malformed UASG or a non-positive
// value. Date and tender number shape problems are warnings.
func (v *Validator) accuracy(fields domain.StructuredFields) assessment {
	a := assessment{errors: []string{}, warnings: []string{}}
	issues := 0

	if fields.UASG != "" {
		a.checks++
		if !uasgPattern.MatchString(fields.UASG) {
			a.errors = append(a.errors, "UASG inválido: "+fields.UASG+" (deve ter 6 dígitos)")
			issues++
		}
	}

	if fields.HasEstimatedValue() {
		a.checks++
		value := fields.Value()
		switch {
		case value <= 0 || math.IsNaN(value):
			a.errors = append(a.errors, "Valor estimado inválido: "+strconv.FormatFloat(value, 'f', -1, 64))
			issues++
		case value > maxPlausibleValue:
			a.warnings = append(a.warnings, v.printer.Sprintf("Valor estimado muito alto: R$ %.2f", value))
		}
	}

	if fields.OpeningDate != "" {
		a.checks++
		if !datePattern.MatchString(fields.OpeningDate) {
			a.warnings = append(a.warnings, "Formato de data pode estar incorreto: "+fields.OpeningDate)
		}
	}

	if fields.TenderNumber != "" {
		a.checks++
		if !tenderNumberPattern.MatchString(fields.TenderNumber) {
			a.warnings = append(a.warnings, "Formato do número do pregão pode estar incorreto: "+fields.TenderNumber)
		}
	}

	a.finish(issues)
	return a
}

// consistency cross-checks fields against the tables. None of the checks
// counts as an issue, so the score is 1.0 whenever it is computed; the
// findings surface as warnings only.
func (v *Validator) consistency(fields domain.StructuredFields, tables []domain.Table) assessment {
	a := assessment{errors: []string{}, warnings: []string{}}

	if fields.HasEstimatedValue() && len(tables) > 0 {
		a.checks++
		if highest, ok := highestTableValue(tables); ok {
			estimated := fields.Value()
			if math.Abs(estimated-highest) > estimated*maxValueDeviation {
				a.warnings = append(a.warnings, v.printer.Sprintf(
					"Valor estimado (%.2f) difere significativamente dos valores encontrados nas tabelas", estimated))
			}
		}
	}

	if fields.Object != "" && len(tables) > 0 {
		a.checks++
		if relatedTables(strings.ToLower(fields.Object), tables) == 0 {
			a.warnings = append(a.warnings, "Tabelas podem não estar relacionadas ao objeto da licitação")
		}
	}

	if fields.UASG != "" && fields.Organization != "" {
		a.checks++
		if len([]rune(strings.TrimSpace(fields.Organization))) < minOrganizationLen {
			a.warnings = append(a.warnings, "Nome do órgão parece muito curto para ser válido")
		}
	}

	a.finish(0)
	return a
}

func highestTableValue(tables []domain.Table) (float64, bool) {
	found := false
	highest := 0.0
	for _, table := range tables {
		text := table.Text()
		if text == "" || !rules.ContainsAny(strings.ToLower(text), financialTerms) {
			continue
		}
		for _, match := range tableValuePattern.FindAllStringSubmatch(text, -1) {
			value, ok := extraction.ParseBrazilianNumber(match[1])
			if !ok || value <= minTableValue {
				continue
			}
			if !found || value > highest {
				highest = value
				found = true
			}
		}
	}
	return highest, found
}

func relatedTables(object string, tables []domain.Table) int {
	objectWords := make(map[string]struct{})
	for _, word := range strings.Fields(object) {
		objectWords[word] = struct{}{}
	}

	related := 0
	for _, table := range tables {
		text := strings.ToLower(table.Text())
		if text == "" {
			continue
		}
		for _, word := range strings.Fields(text) {
			if _, ok := objectWords[word]; ok {
				related++
				break
			}
		}
	}
	return related
}
