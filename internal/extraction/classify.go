package extraction

import (
	"math"
	"regexp"
	"strings"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/iago/licitacao-pipeline/internal/rules"
)

const (
	complexityHigh   = "high"
	complexityMedium = "medium"
	complexityLow    = "low"

	productTableConfidence = 0.8
)

var (
	sentencePattern  = regexp.MustCompile(`[.!?]+`)
	technicalPattern = regexp.MustCompile(`(?i)(norma|regulamento|especificação|certificação|iso|abnt)`)
	digitPattern     = regexp.MustCompile(`\d`)
	punctPattern     = regexp.MustCompile(`[.!?;:]`)
	technicalTerms   = regexp.MustCompile(`(?i)(especificação|norma|regulamento|certificação)`)

	priceTerms         = []string{"preço", "valor", "custo"}
	specificationTerms = []string{"especificação", "característica", "técnic"}
)

type sectionPattern struct {
	name    string
	pattern *regexp.Regexp
}

var sectionPatterns = []sectionPattern{
	{"Objeto/Finalidade", regexp.MustCompile(`(?i)\bobjeto\b`)},
	{"Especificações Técnicas", regexp.MustCompile(`(?i)\bespecificaç(ões|ao)\b`)},
	{"Condições", regexp.MustCompile(`(?i)\bcondiç(ões|ao)\b`)},
	{"Prazos", regexp.MustCompile(`(?i)\bprazo\b`)},
	{"Pagamento", regexp.MustCompile(`(?i)\bpagamento\b`)},
	{"Entrega", regexp.MustCompile(`(?i)\bentrega\b`)},
	{"Garantia", regexp.MustCompile(`(?i)\bgarantia\b`)},
	{"Penalidades", regexp.MustCompile(`(?i)\bpenalidade\b`)},
	{"Anexos", regexp.MustCompile(`(?i)\banexo\b`)},
}

// DocumentType returns the first configured document category whose
// keywords appear in the lowercased text.
func (e *Engine) DocumentType(text string) string {
	return rules.FirstCategory(strings.ToLower(text), e.rules.DocumentTypes, e.rules.DocumentFallback)
}

// ClassifyTable assigns a table category and a complexity label from the
// cell count.
func (e *Engine) ClassifyTable(table domain.Table) domain.TableClassification {
	rows, cols := table.Dimensions()
	return domain.TableClassification{
		TableID:    table.ID,
		Type:       rules.FirstCategory(strings.ToLower(table.Text()), e.rules.TableTypes, e.rules.TableFallback),
		Complexity: e.complexity(rows * cols),
		Rows:       rows,
		Cols:       cols,
		HasHeaders: len(table.Headers) > 0,
	}
}

func (e *Engine) complexity(cells int) string {
	switch {
	case cells > e.rules.ComplexityHighCells:
		return complexityHigh
	case cells > e.rules.ComplexityMediumCells:
		return complexityMedium
	default:
		return complexityLow
	}
}

// IsProductTable reports whether at least the configured number of product
// keywords appear in the table cells.
func (e *Engine) IsProductTable(table domain.Table) bool {
	text := strings.ToLower(table.Text())
	return rules.CountContained(text, e.rules.ProductKeywords) >= e.rules.ProductKeywordMinimum
}

func (e *Engine) StructureProductTable(table domain.Table) domain.ProductTable {
	text := strings.ToLower(table.Text())
	return domain.ProductTable{
		TableID:           table.ID,
		Type:              "produtos_servicos",
		Rows:              table.Rows,
		EstimatedProducts: len(table.Rows),
		HasPrices:         rules.ContainsAny(text, priceTerms),
		HasSpecifications: rules.ContainsAny(text, specificationTerms),
		Confidence:        productTableConfidence,
	}
}

// ProductTables keeps the tables that look like product or service lists.
func (e *Engine) ProductTables(tables []domain.Table) []domain.ProductTable {
	products := make([]domain.ProductTable, 0)
	for _, table := range tables {
		if e.IsProductTable(table) {
			products = append(products, e.StructureProductTable(table))
		}
	}
	return products
}

// Classify runs the stage 4 classification over the document text and tables.
func (e *Engine) Classify(text string, tables []domain.Table) domain.Classification {
	classified := make([]domain.TableClassification, 0, len(tables))
	for _, table := range tables {
		classified = append(classified, e.ClassifyTable(table))
	}
	return domain.Classification{
		DocumentType:    e.DocumentType(text),
		Tables:          classified,
		ComplexityScore: ComplexityScore(text),
		KeySections:     KeySections(text),
		Language:        AssessLanguage(text),
	}
}

// ComplexityScore blends length, sentence count, table mentions and
// technical vocabulary into a value in [0,1].
func ComplexityScore(text string) float64 {
	lower := strings.ToLower(text)
	words := float64(len(strings.Fields(text)))
	sentences := float64(len(sentencePattern.FindAllStringIndex(text, -1)))
	tables := float64(strings.Count(lower, "tabela") + strings.Count(lower, "table"))
	technical := float64(len(technicalPattern.FindAllStringIndex(text, -1)))

	score := words/10000*0.3 + sentences/100*0.2 + tables/20*0.3 + technical/50*0.2
	return math.Min(1, score)
}

func KeySections(text string) []domain.KeySection {
	sections := make([]domain.KeySection, 0)
	for _, section := range sectionPatterns {
		occurrences := len(section.pattern.FindAllStringIndex(text, -1))
		if occurrences == 0 {
			continue
		}
		sections = append(sections, domain.KeySection{
			Name:        section.name,
			Occurrences: occurrences,
			Confidence:  math.Min(1, float64(occurrences)/3),
		})
	}
	return sections
}

func AssessLanguage(text string) domain.LanguageQuality {
	words := len(strings.Fields(text))
	chars := len([]rune(text))
	quality := domain.LanguageQuality{
		WordCount:         words,
		CharacterCount:    chars,
		AvgWordLength:     float64(chars) / float64(max(words, 1)),
		HasNumbers:        digitPattern.MatchString(text),
		HasPunctuation:    punctPattern.MatchString(text),
		HasTechnicalTerms: technicalTerms.MatchString(text),
		EstimatedQuality:  "medium",
	}
	if quality.HasNumbers && quality.HasPunctuation && quality.HasTechnicalTerms {
		quality.EstimatedQuality = "high"
	}
	return quality
}
