package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/folioenrich/folioenrich/internal/ingest"
	"github.com/folioenrich/folioenrich/internal/model"
)

var (
	outPath      string
	inputFormat  string
	ontologyPath string
	runTimeout   time.Duration
)

// enrichCmd represents the one-shot enrich command
var enrichCmd = &cobra.Command{
	Use:   "enrich <file>",
	Short: "Enrich a single document and write the result as JSON",
	Long: `Enrich runs the full pipeline over one document and writes the
JobResult to a file or stdout.

Example:
  folio-enrich enrich complaint.txt --ontology folio.json
  folio-enrich enrich opinion.html --format html --out result.json
  FOLIO_ENRICH_LLM_PROVIDER=openai folio-enrich enrich brief.md --format markdown`,
	Args: cobra.ExactArgs(1),
	RunE: runEnrich,
}

func init() {
	rootCmd.AddCommand(enrichCmd)

	enrichCmd.Flags().StringVar(&outPath, "out", "", "output JSON path (default: stdout)")
	enrichCmd.Flags().StringVar(&inputFormat, "format", "", "input format: plain_text, markdown, html (default: by extension)")
	enrichCmd.Flags().StringVar(&ontologyPath, "ontology", "", "ontology snapshot JSON path (overrides config)")
	enrichCmd.Flags().DurationVar(&runTimeout, "timeout", 10*time.Minute, "overall run timeout")
}

func runEnrich(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if ontologyPath != "" {
		cfg.OntologyPath = ontologyPath
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if int64(len(raw)) > cfg.MaxUploadBytes {
		return fmt.Errorf("%w: input exceeds %d bytes", model.ErrInput, cfg.MaxUploadBytes)
	}

	pipe, err := buildPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}

	doc, err := ingest.Normalize(raw, resolveFormat(path), cfg)
	if err != nil {
		return err
	}

	res, err := pipe.Run(ctx, doc)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if outPath == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Wrote %s: %d annotations, %d individuals, %d properties, %d triples\n",
		outPath, len(res.Annotations), len(res.Individuals), len(res.Properties), len(res.Triples))
	if len(res.QualitySignals) > 0 {
		fmt.Fprintf(os.Stderr, "Quality signals: %d (see quality_signals in the output)\n", len(res.QualitySignals))
	}
	return nil
}

func resolveFormat(path string) model.DocumentFormat {
	switch strings.ToLower(inputFormat) {
	case "plain_text", "text", "txt":
		return model.FormatPlainText
	case "markdown", "md":
		return model.FormatMarkdown
	case "html":
		return model.FormatHTML
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return model.FormatMarkdown
	case ".html", ".htm":
		return model.FormatHTML
	default:
		return model.FormatPlainText
	}
}
