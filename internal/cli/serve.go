package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/folioenrich/folioenrich/internal/enrich"
	"github.com/folioenrich/folioenrich/internal/jobstore"
	"github.com/folioenrich/folioenrich/internal/server"
)

var listenAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the enrichment HTTP server",
	Long: `Serve exposes the enrichment API over HTTP: job submission,
status, results, the SSE event stream, the annotation action surface and
Prometheus metrics on /metrics.

Example:
  folio-enrich serve --ontology folio.json --listen :8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&ontologyPath, "ontology", "", "ontology snapshot JSON path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if ontologyPath != "" {
		cfg.OntologyPath = ontologyPath
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	pipe, err := buildPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}

	store, err := jobstore.New(cfg.JobsDir, log)
	if err != nil {
		return err
	}

	svc := enrich.New(cfg, log, pipe, store)
	svc.StartRetentionSweeper(ctx)

	log.Info("starting server",
		zap.String("addr", cfg.ListenAddr),
		zap.String("jobs_dir", cfg.JobsDir))
	return server.New(svc, log).Run(ctx, cfg.ListenAddr)
}
