// The indexer builds, lists and deletes corpus face indexes from the
// command line, without going through the API server.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/eventsnap/facefinder/internal/config"
	"github.com/eventsnap/facefinder/internal/face"
	"github.com/eventsnap/facefinder/internal/index"
)

var (
	photoRoot    string
	indexDir     string
	insightURL   string
	insightModel string
)

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Build and manage corpus face indexes",
	Long: `Indexer runs the face indexing pipeline over a corpus photo directory:
detect faces, embed them and publish a searchable index artifact.

The corpus for model <model> is expected under <photos>/<model>.`,
}

var buildCmd = &cobra.Command{
	Use:   "build <model>",
	Short: "Index a corpus photo directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuild,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List published indexes",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <model>",
	Short: "Delete a published index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() {
		_ = godotenv.Load()
	})

	rootCmd.PersistentFlags().StringVar(&photoRoot, "photos", "./photos", "Photo root directory, one corpus per model")
	rootCmd.PersistentFlags().StringVar(&indexDir, "indexes", "./indexes", "Directory holding published index artifacts")
	rootCmd.PersistentFlags().StringVar(&insightURL, "insight-url", "http://localhost:18081", "InsightFace serving URL")
	rootCmd.PersistentFlags().StringVar(&insightModel, "insight-model", "buffalo_l", "InsightFace model pack")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
}

func openStore() (*index.Store, error) {
	store, err := index.NewStore(indexDir)
	if err != nil {
		return nil, fmt.Errorf("open index store: %w", err)
	}
	return store, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	modelID := args[0]
	corpusDir := filepath.Join(photoRoot, modelID)

	if info, err := os.Stat(corpusDir); err != nil || !info.IsDir() {
		return fmt.Errorf("no corpus directory at %s", corpusDir)
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	logger := config.NewLogger("development")
	detector, extractor, err := face.NewPipeline(cmd.Context(), &config.Config{
		InsightURL:       insightURL,
		InsightModel:     insightModel,
		OperationTimeout: 45 * time.Second,
	}, logger)
	if err != nil {
		return fmt.Errorf("build face pipeline: %w", err)
	}

	fmt.Printf("Indexing %s...\n", corpusDir)

	var bar *progressbar.ProgressBar
	builder := index.NewBuilder(detector, extractor, logger)
	idx, err := builder.Build(context.Background(), modelID, corpusDir, func(p index.Progress) {
		if bar == nil {
			bar = progressbar.NewOptions(p.Total,
				progressbar.OptionSetDescription("Indexing photos"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("photos"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(p.Processed)
	})
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	if err := store.Save(idx); err != nil {
		return fmt.Errorf("publish index: %w", err)
	}

	fmt.Printf("Published index %q: %d photos, %d faces\n", modelID, len(idx.ByPhoto), idx.FaceCount())
	if len(idx.Errors) > 0 {
		fmt.Printf("Skipped %d files:\n", len(idx.Errors))
		for _, fe := range idx.Errors {
			fmt.Printf("  %s: %s\n", fe.Path, fe.Error)
		}
	}

	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	stats, err := store.List()
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		fmt.Println("No published indexes.")
		return nil
	}

	fmt.Printf("%-24s %8s %8s %8s  %s\n", "MODEL", "PHOTOS", "FACES", "ERRORS", "BUILT")
	for _, s := range stats {
		built := ""
		if !s.BuiltAt.IsZero() {
			built = s.BuiltAt.Format(time.RFC3339)
		}
		fmt.Printf("%-24s %8d %8d %8d  %s\n", s.ModelID, s.Photos, s.Faces, s.Errors, built)
	}

	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	if err := store.Delete(args[0]); err != nil {
		return err
	}

	fmt.Printf("Deleted index %q\n", args[0])
	return nil
}
