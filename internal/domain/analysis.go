package domain

import "time"

type RiskCategory string

const (
	RiskTechnical  RiskCategory = "technical"
	RiskLegal      RiskCategory = "legal"
	RiskCommercial RiskCategory = "commercial"
	RiskLogistic   RiskCategory = "logistic"
)

// RiskItem is immutable once built by NewRiskItem.
type RiskItem struct {
	ID          string       `json:"risk_id"`
	Description string       `json:"description"`
	Category    RiskCategory `json:"risk_type"`
	Probability float64      `json:"probability"`
	Impact      float64      `json:"impact"`
	Criticality float64      `json:"criticality_score"`
	Mitigations []string     `json:"mitigation_suggestions"`
}

func NewRiskItem(
	id string,
	description string,
	category RiskCategory,
	probability float64,
	impact float64,
	mitigations []string,
) RiskItem {
	return RiskItem{
		ID:          id,
		Description: description,
		Category:    category,
		Probability: probability,
		Impact:      impact,
		Criticality: probability * impact,
		Mitigations: append([]string(nil), mitigations...),
	}
}

type OpportunityCategory string

const (
	OpportunityHighVolume OpportunityCategory = "high_volume"
	OpportunityHighValue  OpportunityCategory = "high_value"
	OpportunityRecurring  OpportunityCategory = "recurring"
	OpportunityStrategic  OpportunityCategory = "strategic"
)

type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

type OpportunityItem struct {
	ID             string              `json:"opportunity_id"`
	Description    string              `json:"description"`
	Category       OpportunityCategory `json:"opportunity_type"`
	PotentialValue *float64            `json:"potential_value,omitempty"`
	Likelihood     float64             `json:"likelihood"`
	Importance     Importance          `json:"strategic_importance"`
	Actions        []string            `json:"recommended_actions"`
}

// Score is the ranking key: potential value (0 when unknown) times likelihood.
func (o OpportunityItem) Score() float64 {
	if o.PotentialValue == nil {
		return 0
	}
	return *o.PotentialValue * o.Likelihood
}

type ValidationDetails struct {
	TotalFieldsAnalyzed        int `json:"total_fields_analyzed"`
	FieldsWithData             int `json:"fields_with_data"`
	AccuracyChecksPerformed    int `json:"accuracy_checks_performed"`
	ConsistencyChecksPerformed int `json:"consistency_checks_performed"`
}

type ValidationResult struct {
	Completeness  float64           `json:"completeness_score"`
	Accuracy      float64           `json:"accuracy_score"`
	Consistency   float64           `json:"consistency_score"`
	Overall       float64           `json:"overall_validation_score"`
	Errors        []string          `json:"errors"`
	Warnings      []string          `json:"warnings"`
	MissingFields []string          `json:"missing_fields"`
	Details       ValidationDetails `json:"validation_details"`
}

type Grade string

const (
	GradePoor      Grade = "POOR"
	GradeFair      Grade = "FAIR"
	GradeGood      Grade = "GOOD"
	GradeExcellent Grade = "EXCELLENT"
)

type AnalysisSummary struct {
	TotalRisks           int     `json:"total_risks_identified"`
	TotalOpportunities   int     `json:"total_opportunities_identified"`
	ValidationScore      float64 `json:"data_validation_score"`
	ExtractionConfidence float64 `json:"extraction_confidence"`
}

type QualityBreakdown struct {
	FinalScore       float64            `json:"final_score"`
	Grade            Grade              `json:"quality_grade"`
	ComponentScores  map[string]float64 `json:"component_scores"`
	ComponentWeights map[string]float64 `json:"component_weights"`
	Summary          AnalysisSummary    `json:"analysis_summary"`
	Recommendations  []string           `json:"recommendations"`
}

type TableClassification struct {
	TableID    int    `json:"table_id"`
	Type       string `json:"table_type"`
	Complexity string `json:"complexity"`
	Rows       int    `json:"estimated_rows"`
	Cols       int    `json:"estimated_cols"`
	HasHeaders bool   `json:"has_headers"`
}

type KeySection struct {
	Name        string  `json:"section_name"`
	Occurrences int     `json:"occurrences"`
	Confidence  float64 `json:"confidence"`
}

type LanguageQuality struct {
	WordCount         int     `json:"word_count"`
	CharacterCount    int     `json:"character_count"`
	AvgWordLength     float64 `json:"avg_word_length"`
	HasNumbers        bool    `json:"has_numbers"`
	HasPunctuation    bool    `json:"has_punctuation"`
	HasTechnicalTerms bool    `json:"has_technical_terms"`
	EstimatedQuality  string  `json:"estimated_quality"`
}

// Classification is the stage 4 output besides the structured fields.
type Classification struct {
	DocumentType    string                `json:"document_type"`
	Tables          []TableClassification `json:"classified_tables"`
	ComplexityScore float64               `json:"complexity_score"`
	KeySections     []KeySection          `json:"key_sections"`
	Language        LanguageQuality       `json:"language_quality"`
}

type ProductTable struct {
	TableID           int              `json:"table_id"`
	Type              string           `json:"table_type"`
	Rows              []map[string]any `json:"structured_data"`
	EstimatedProducts int              `json:"estimated_products"`
	HasPrices         bool             `json:"has_prices"`
	HasSpecifications bool             `json:"has_specifications"`
	Confidence        float64          `json:"confidence"`
}

type ExtractionMetadata struct {
	Confidence   Confidence `json:"confidence"`
	Grade        Grade      `json:"quality_grade"`
	Pages        int        `json:"pages"`
	TableCount   int        `json:"table_count"`
	DocumentType string     `json:"document_type"`
}

type Analysis struct {
	Classification     Classification     `json:"classification"`
	Validation         ValidationResult   `json:"validation"`
	ExtractionMetadata ExtractionMetadata `json:"extraction_metadata"`
}

type ProcessingMetadata struct {
	TotalProcessingTime float64 `json:"total_processing_time"`
	StagesCompleted     int     `json:"stages_completed"`
	TotalRisks          int     `json:"total_risks"`
	TotalOpportunities  int     `json:"total_opportunities"`
	TotalTables         int     `json:"total_tables"`
	TotalProductTables  int     `json:"total_product_tables"`
	HasErrors           bool    `json:"has_errors"`
	HasWarnings         bool    `json:"has_warnings"`
}

// PipelineResult is written once per task and never modified afterwards.
type PipelineResult struct {
	TaskID          string             `json:"task_id"`
	FileName        string             `json:"file_name"`
	Context         ProcessingContext  `json:"context"`
	StructuredData  StructuredFields   `json:"structured_data"`
	Tables          []Table            `json:"tables"`
	ProductTables   []ProductTable     `json:"product_tables"`
	Risks           []RiskItem         `json:"risks"`
	Opportunities   []OpportunityItem  `json:"opportunities"`
	Quality         QualityBreakdown   `json:"quality_score"`
	ProcessingTimes map[string]float64 `json:"processing_times"`
	Errors          []string           `json:"errors"`
	Warnings        []string           `json:"warnings"`
	Analysis        Analysis           `json:"analysis"`
	Metadata        ProcessingMetadata `json:"processing_metadata"`
	CompletedAt     time.Time          `json:"timestamp"`
}

// QualityReport is the quality projection of a finished result.
type QualityReport struct {
	TaskID          string             `json:"task_id"`
	Quality         QualityBreakdown   `json:"quality_score"`
	ProcessingTimes map[string]float64 `json:"processing_times"`
	Errors          []string           `json:"errors"`
	Warnings        []string           `json:"warnings"`
}

func (r PipelineResult) QualityReport() QualityReport {
	return QualityReport{
		TaskID:          r.TaskID,
		Quality:         r.Quality,
		ProcessingTimes: r.ProcessingTimes,
		Errors:          r.Errors,
		Warnings:        r.Warnings,
	}
}
