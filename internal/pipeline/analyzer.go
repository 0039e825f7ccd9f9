package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/iago/licitacao-pipeline/internal/extraction"
	"github.com/iago/licitacao-pipeline/internal/opportunity"
	"github.com/iago/licitacao-pipeline/internal/quality"
	"github.com/iago/licitacao-pipeline/internal/risk"
	"github.com/iago/licitacao-pipeline/internal/rules"
	"golang.org/x/sync/errgroup"
)

// ProgressFunc is told when a stage starts. It may be called from more than
// one goroutine while risk and opportunity analysis run side by side.
type ProgressFunc func(stage int)

// Analyzer runs stages 4 to 9 over an extraction that already happened.
// It holds no per-task state and is safe for concurrent use.
type Analyzer struct {
	fields        *extraction.Engine
	risks         *risk.Engine
	opportunities *opportunity.Engine
	validator     *quality.Validator
	fuser         *quality.Fuser
	now           func() time.Time
}

func NewAnalyzer(set *rules.Set) *Analyzer {
	if set == nil {
		set = rules.Default()
	}
	return &Analyzer{
		fields:        extraction.NewEngine(set),
		risks:         risk.NewEngine(set),
		opportunities: opportunity.NewEngine(set),
		validator:     quality.NewValidator(set),
		fuser:         quality.NewFuser(set),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// AnalysisInput is what the extraction stages hand over.
type AnalysisInput struct {
	Context        domain.ProcessingContext
	Extraction     domain.Extraction
	ExtractionTime time.Duration
}

type stageTimer struct {
	mu    sync.Mutex
	times map[string]float64
}

func (t *stageTimer) record(stage int, elapsed time.Duration) {
	t.mu.Lock()
	t.times[domain.StageKey(stage)] = elapsed.Seconds()
	t.mu.Unlock()
}

func (t *stageTimer) track(stage int, run func()) {
	start := time.Now()
	run()
	t.record(stage, time.Since(start))
}

// Analyze builds the pipeline result. Risk and opportunity analysis run
// concurrently and both finish before validation starts.
func (a *Analyzer) Analyze(ctx context.Context, in AnalysisInput, progress ProgressFunc) (domain.PipelineResult, error) {
	if progress == nil {
		progress = func(int) {}
	}
	timer := &stageTimer{times: map[string]float64{
		domain.StageKey(domain.StageExtraction): in.ExtractionTime.Seconds(),
	}}

	text := in.Extraction.AnalysisText()
	tables := in.Extraction.Tables
	if tables == nil {
		tables = []domain.Table{}
	}

	var (
		fields         domain.StructuredFields
		classification domain.Classification
	)
	progress(domain.StageClassification)
	timer.track(domain.StageClassification, func() {
		fields = a.fields.Extract(text)
		classification = a.fields.Classify(text, tables)
	})

	var (
		risks         []domain.RiskItem
		opportunities []domain.OpportunityItem
	)
	var group errgroup.Group
	group.Go(func() error {
		progress(domain.StageRisk)
		return recovered("risk analysis", func() {
			timer.track(domain.StageRisk, func() { risks = a.risks.Analyze(text, fields) })
		})
	})
	group.Go(func() error {
		progress(domain.StageOpportunity)
		return recovered("opportunity analysis", func() {
			timer.track(domain.StageOpportunity, func() {
				opportunities = a.opportunities.Analyze(text, fields, tables)
			})
		})
	})
	if err := group.Wait(); err != nil {
		return domain.PipelineResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.PipelineResult{}, err
	}

	var validation domain.ValidationResult
	progress(domain.StageValidation)
	timer.track(domain.StageValidation, func() {
		validation = a.validator.Validate(fields, tables, risks)
	})

	var productTables []domain.ProductTable
	progress(domain.StageStructuredOutput)
	timer.track(domain.StageStructuredOutput, func() {
		productTables = a.fields.ProductTables(tables)
	})

	var breakdown domain.QualityBreakdown
	progress(domain.StageCompilation)
	timer.track(domain.StageCompilation, func() {
		breakdown = a.fuser.Fuse(in.Extraction.Confidence.Overall, validation, len(risks), len(opportunities))
	})

	total := 0.0
	for _, seconds := range timer.times {
		total += seconds
	}
	errs := nonNil(validation.Errors)
	warnings := nonNil(validation.Warnings)

	return domain.PipelineResult{
		TaskID:          in.Context.TaskID,
		FileName:        in.Context.FileName,
		Context:         in.Context,
		StructuredData:  fields,
		Tables:          tables,
		ProductTables:   productTables,
		Risks:           risks,
		Opportunities:   opportunities,
		Quality:         breakdown,
		ProcessingTimes: timer.times,
		Errors:          errs,
		Warnings:        warnings,
		Analysis: domain.Analysis{
			Classification: classification,
			Validation:     validation,
			ExtractionMetadata: domain.ExtractionMetadata{
				Confidence:   in.Extraction.Confidence,
				Grade:        a.fuser.Grade(in.Extraction.Confidence.Overall),
				Pages:        in.Extraction.Pages,
				TableCount:   len(tables),
				DocumentType: classification.DocumentType,
			},
		},
		Metadata: domain.ProcessingMetadata{
			TotalProcessingTime: total,
			StagesCompleted:     domain.TotalStages,
			TotalRisks:          len(risks),
			TotalOpportunities:  len(opportunities),
			TotalTables:         len(tables),
			TotalProductTables:  len(productTables),
			HasErrors:           len(errs) > 0,
			HasWarnings:         len(warnings) > 0,
		},
		CompletedAt: a.now(),
	}, nil
}

// recovered turns a panic inside an errgroup goroutine into an error; the
// worker pool only sees panics on its own goroutine.
func recovered(name string, run func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	run()
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
