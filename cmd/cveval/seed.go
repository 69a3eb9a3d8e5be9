package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hanifmn/cveval/internal/config"
	"github.com/hanifmn/cveval/internal/ingest"
	"github.com/hanifmn/cveval/internal/llm"
	"github.com/hanifmn/cveval/internal/retrieval"
	"github.com/hanifmn/cveval/internal/retry"
	"github.com/hanifmn/cveval/internal/storage"
)

var seedKinds = map[string]bool{
	retrieval.KindCVRubric:       true,
	retrieval.KindProjectRubric:  true,
	retrieval.KindJobDescription: true,
	retrieval.KindCaseBrief:      true,
}

var seedCmd = &cobra.Command{
	Use:   "seed --kind <kind> <file>...",
	Short: "Seed ground-truth documents into the retrieval corpus",
	Long: `Seed ground-truth documents into the retrieval corpus.

Each file is chunked, embedded, and stored under the given kind so the
scoring pipeline can ground its prompts on it.

Kinds: cv_rubric, project_rubric, job_description, case_brief

Examples:
  cveval seed --kind cv_rubric rubrics/cv.md
  cveval seed --kind case_brief briefs/backend-case.md briefs/extra.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		if !seedKinds[kind] {
			return fmt.Errorf("unknown kind %q", kind)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		gemini, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.EmbeddingModel)
		if err != nil {
			return fmt.Errorf("initializing gemini: %w", err)
		}

		store, err := storage.Open(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		policy := retry.DefaultPolicy()
		policy.MaxAttempts = cfg.RetryAttempts
		policy.BaseDelay = cfg.RetryBaseDelay

		seeder := ingest.NewSeeder(gemini, retrieval.NewSQLiteStore(store.DB()), policy, nil)

		total := 0
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			n, err := seeder.Seed(ctx, filepath.Base(path), kind, string(data))
			if err != nil {
				return fmt.Errorf("seeding %s: %w", path, err)
			}
			fmt.Fprintf(os.Stderr, "seeded %s: %d chunks\n", path, n)
			total += n
		}
		fmt.Fprintf(os.Stderr, "done: %d chunks across %d files\n", total, len(args))
		return nil
	},
}

func init() {
	seedCmd.Flags().String("kind", "", "document kind (required)")
	seedCmd.MarkFlagRequired("kind")
}
