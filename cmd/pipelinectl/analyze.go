package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/iago/licitacao-pipeline/internal/extractor"
	"github.com/iago/licitacao-pipeline/internal/pipeline"
)

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Run the analysis stages over text or extraction documents",
		Long: `Analyze reads plain-text exports (pages split by form feeds) or JSON
extraction documents with text, markdown, tables and confidence, and prints
one result per file.

Examples:
  pipelinectl analyze edital.txt
  pipelinectl analyze --uasg 986531 --ano 2024 --out results/ *.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAnalyze,
	}

	cmd.Flags().String("out", "", "directory for result files (default: print to stdout)")
	cmd.Flags().Int("ano", 0, "year of the tender")
	cmd.Flags().String("uasg", "", "UASG code of the purchasing unit")
	cmd.Flags().String("numero-pregao", "", "tender number")
	_ = viper.BindPFlag("out", cmd.Flags().Lookup("out"))

	return cmd
}

func runAnalyze(cmd *cobra.Command, files []string) error {
	ctx := cmd.Context()

	set, err := effectiveRules()
	if err != nil {
		return err
	}
	analyzer := pipeline.NewAnalyzer(set)

	year, _ := cmd.Flags().GetInt("ano")
	uasg, _ := cmd.Flags().GetString("uasg")
	tender, _ := cmd.Flags().GetString("numero-pregao")
	outDir := viper.GetString("out")
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	var bar *progressbar.ProgressBar
	if len(files) > 1 {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Analyzing documents"),
			progressbar.OptionShowElapsedTimeOnFinish(),
		)
	}

	failed := 0
	for _, path := range files {
		pc := domain.ProcessingContext{
			TaskID:       uuid.NewString(),
			FileName:     filepath.Base(path),
			Year:         year,
			UASG:         uasg,
			TenderNumber: tender,
			CreatedAt:    time.Now().UTC(),
		}
		result, err := analyzeFile(ctx, analyzer, path, pc)
		if err == nil {
			err = writeResult(cmd.OutOrStdout(), outDir, result)
		}
		if err != nil {
			failed++
			logger.Error().Err(err).Str("file", path).Msg("analysis failed")
		} else {
			logger.Info().
				Str("file", path).
				Float64("final_score", result.Quality.FinalScore).
				Str("grade", string(result.Quality.Grade)).
				Msg("analysis completed")
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(files))
	}
	return nil
}

func analyzeFile(
	ctx context.Context,
	analyzer *pipeline.Analyzer,
	path string,
	pc domain.ProcessingContext,
) (domain.PipelineResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.PipelineResult{}, fmt.Errorf("read %s: %w", path, err)
	}

	started := time.Now()
	extraction, err := loadExtraction(ctx, content, pc.FileName)
	if err != nil {
		return domain.PipelineResult{}, err
	}

	return analyzer.Analyze(ctx, pipeline.AnalysisInput{
		Context:        pc,
		Extraction:     extraction,
		ExtractionTime: time.Since(started),
	}, nil)
}

// loadExtraction accepts a JSON extraction document or falls back to the
// plain-text extractor.
func loadExtraction(ctx context.Context, content []byte, fileName string) (domain.Extraction, error) {
	trimmed := bytes.TrimSpace(content)
	if !strings.EqualFold(filepath.Ext(fileName), ".json") && !bytes.HasPrefix(trimmed, []byte("{")) {
		return extractor.NewTextExtractor().Extract(ctx, content, fileName)
	}

	var extraction domain.Extraction
	if err := json.Unmarshal(trimmed, &extraction); err != nil {
		return domain.Extraction{}, fmt.Errorf("decode extraction document %s: %w", fileName, err)
	}
	if strings.TrimSpace(extraction.AnalysisText()) == "" {
		return domain.Extraction{}, fmt.Errorf("extraction document %s has no text", fileName)
	}
	if extraction.Confidence.Overall == 0 {
		extraction.Confidence = domain.DefaultConfidence()
	}
	if extraction.Tables == nil {
		extraction.Tables = []domain.Table{}
	}
	if extraction.Pages == 0 {
		extraction.Pages = 1
	}
	return extraction, nil
}

func writeResult(stdout io.Writer, outDir string, result domain.PipelineResult) error {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	encoded = append(encoded, '\n')

	if outDir == "" {
		_, err = stdout.Write(encoded)
		return err
	}

	name := strings.TrimSuffix(result.FileName, filepath.Ext(result.FileName)) + ".result.json"
	return os.WriteFile(filepath.Join(outDir, name), encoded, 0o644)
}
