// Package rules holds the keyword lists and numeric thresholds used by the
// analysis engines. The defaults target Brazilian public procurement
// documents; a YAML file can replace any list or threshold.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidRules = errors.New("invalid rules")

type Set struct {
	Extraction  ExtractionRules  `yaml:"extraction"`
	Risk        RiskRules        `yaml:"risk"`
	Opportunity OpportunityRules `yaml:"opportunity"`
	Quality     QualityRules     `yaml:"quality"`
}

// Category is one entry of an ordered keyword classifier. The first
// category with a keyword present wins.
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type ExtractionRules struct {
	CertificationKeywords []string   `yaml:"certification_keywords"`
	DocumentTypes         []Category `yaml:"document_types"`
	DocumentFallback      string     `yaml:"document_fallback"`
	TableTypes            []Category `yaml:"table_types"`
	TableFallback         string     `yaml:"table_fallback"`
	ProductKeywords       []string   `yaml:"product_keywords"`
	ProductKeywordMinimum int        `yaml:"product_keyword_minimum"`
	ComplexityHighCells   int        `yaml:"complexity_high_cells"`
	ComplexityMediumCells int        `yaml:"complexity_medium_cells"`
}

type RiskRules struct {
	RestrictiveSpecTerms    []string `yaml:"restrictive_spec_terms"`
	BrandPatterns           []string `yaml:"brand_patterns"`
	BrandMatchThreshold     int      `yaml:"brand_match_threshold"`
	IntegrationTerms        []string `yaml:"integration_terms"`
	PenaltyPercentThreshold float64  `yaml:"penalty_percent_threshold"`
	LiabilityTerms          []string `yaml:"liability_terms"`
	ComplianceTerms         []string `yaml:"compliance_terms"`
	UpfrontPaymentTerm      string   `yaml:"upfront_payment_term"`
	SingleSupplierTerms     []string `yaml:"single_supplier_terms"`
	HighValueThreshold      float64  `yaml:"high_value_threshold"`
	WarrantyMonthsThreshold int      `yaml:"warranty_months_threshold"`
	ShortDeliveryDays       int      `yaml:"short_delivery_days"`
	RemoteLocationTerms     []string `yaml:"remote_location_terms"`
	SpecialHandlingTerms    []string `yaml:"special_handling_terms"`
	InstallationTerms       []string `yaml:"installation_terms"`
}

// Sector maps a keyword found in the organization name to a market opportunity.
type Sector struct {
	Keyword     string   `yaml:"keyword"`
	Description string   `yaml:"description"`
	Importance  string   `yaml:"importance"`
	Actions     []string `yaml:"actions"`
}

type OpportunityRules struct {
	VolumeThreshold      int      `yaml:"volume_threshold"`
	HighVolumeThreshold  int      `yaml:"high_volume_threshold"`
	QuantityTableTerms   []string `yaml:"quantity_table_terms"`
	HighValueThreshold   float64  `yaml:"high_value_threshold"`
	MediumValueThreshold float64  `yaml:"medium_value_threshold"`
	RecurringTerms       []string `yaml:"recurring_terms"`
	FrameworkTerms       []string `yaml:"framework_terms"`
	LongContractYears    int      `yaml:"long_contract_years"`
	StrategicTerms       []string `yaml:"strategic_terms"`
	InnovationTerms      []string `yaml:"innovation_terms"`
	Sectors              []Sector `yaml:"sectors"`
	TechnologyTerms      []string `yaml:"technology_terms"`
	SustainabilityTerms  []string `yaml:"sustainability_terms"`
}

type Thresholds struct {
	Excellent float64 `yaml:"excellent"`
	Good      float64 `yaml:"good"`
	Fair      float64 `yaml:"fair"`
}

type QualityRules struct {
	RequiredFields []string   `yaml:"required_fields"`
	Thresholds     Thresholds `yaml:"thresholds"`
}

// Load overlays the YAML file at path on top of Default. Keys missing from
// the file keep their default value; lists present in the file replace the
// default list entirely.
func Load(path string) (*Set, error) {
	set := Default()
	if strings.TrimSpace(path) == "" {
		return set, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	if err := yaml.Unmarshal(raw, set); err != nil {
		return nil, fmt.Errorf("decode rules file: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// Marshal renders the set as YAML in the same layout Load accepts.
func (s *Set) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

func (s *Set) Validate() error {
	t := s.Quality.Thresholds
	if !(t.Excellent >= t.Good && t.Good >= t.Fair) {
		return fmt.Errorf("%w: quality thresholds must satisfy excellent >= good >= fair", ErrInvalidRules)
	}
	if t.Fair < 0 || t.Excellent > 1 {
		return fmt.Errorf("%w: quality thresholds must be within [0,1]", ErrInvalidRules)
	}
	if len(s.Quality.RequiredFields) == 0 {
		return fmt.Errorf("%w: required_fields is empty", ErrInvalidRules)
	}
	for _, field := range s.Quality.RequiredFields {
		if !knownField(field) {
			return fmt.Errorf("%w: unknown required field %q", ErrInvalidRules, field)
		}
	}
	if s.Extraction.ComplexityHighCells < s.Extraction.ComplexityMediumCells {
		return fmt.Errorf("%w: complexity thresholds out of order", ErrInvalidRules)
	}
	if s.Opportunity.HighValueThreshold < s.Opportunity.MediumValueThreshold {
		return fmt.Errorf("%w: opportunity value tiers out of order", ErrInvalidRules)
	}
	for _, pattern := range s.Risk.BrandPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%w: brand pattern %q: %v", ErrInvalidRules, pattern, err)
		}
	}
	for _, category := range append(append([]Category{}, s.Extraction.DocumentTypes...), s.Extraction.TableTypes...) {
		if strings.TrimSpace(category.Name) == "" || len(category.Keywords) == 0 {
			return fmt.Errorf("%w: category needs a name and keywords", ErrInvalidRules)
		}
	}
	return nil
}

// FieldNames lists the structured field keys accepted in required_fields.
var FieldNames = []string{
	"numero_pregao",
	"uasg",
	"orgao",
	"objeto",
	"valor_estimado",
	"data_abertura",
	"modalidade",
	"local_entrega",
	"prazo_entrega",
	"condicoes_pagamento",
}

func knownField(name string) bool {
	for _, candidate := range FieldNames {
		if candidate == name {
			return true
		}
	}
	return false
}

// ContainsAny reports whether text contains at least one of terms. Callers
// lowercase text first; terms are stored lowercase.
func ContainsAny(text string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// CountContained returns how many distinct terms appear in text.
func CountContained(text string, terms []string) int {
	count := 0
	for _, term := range terms {
		if term != "" && strings.Contains(text, term) {
			count++
		}
	}
	return count
}

// FirstCategory returns the first category with a keyword in text, or fallback.
func FirstCategory(text string, categories []Category, fallback string) string {
	for _, category := range categories {
		if ContainsAny(text, category.Keywords) {
			return category.Name
		}
	}
	return fallback
}
