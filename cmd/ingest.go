package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/face-sorter/internal/config"
	"github.com/kozaktomas/face-sorter/internal/constants"
	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/extractor"
	"github.com/kozaktomas/face-sorter/internal/identity"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Detect faces in image files and sort them into persons",
	Long: `Detect faces in the given images or directories, compute their
embeddings through the extractor service and assign every usable face to a
person. Faces close to an existing person join it, the rest start new ones.

The process can be stopped and resumed - already ingested images are skipped
unless --force is set.

Examples:
  # Ingest a directory of photos (5 concurrent workers)
  face-sorter ingest ./photos

  # Use different concurrency and only JPEG files
  face-sorter ingest --concurrency 3 --ext .jpg,.jpeg ./photos

  # Re-process images that were ingested before
  face-sorter ingest --force ./photos`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().Int("concurrency", constants.DefaultIngestConcurrency, "Number of parallel workers")
	ingestCmd.Flags().Int("limit", 0, "Limit number of images to process (0 = no limit)")
	ingestCmd.Flags().StringSlice("ext", []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}, "Image file extensions to include")
	ingestCmd.Flags().Bool("force", false, "Re-process images that already have stored faces")
}

func runIngest(cmd *cobra.Command, args []string) error {
	concurrency := mustGetInt(cmd, "concurrency")
	limit := mustGetInt(cmd, "limit")
	force := mustGetBool(cmd, "force")
	exts := mustGetStringSlice(cmd, "ext")

	ctx := context.Background()
	cfg := config.Load()

	policy, err := defaultPolicy(cfg)
	if err != nil {
		return err
	}

	engine, err := initEngine(cfg, policy)
	if err != nil {
		return err
	}

	store, err := database.GetStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to get store: %w", err)
	}

	faceCount, _ := store.CountFaces(ctx)
	imageCount, _ := store.CountImages(ctx)
	fmt.Printf("Faces in database: %d (across %d images)\n", faceCount, imageCount)

	client := extractor.New(cfg.Extractor.URL, time.Duration(cfg.Extractor.TimeoutSeconds)*time.Second)

	files, err := collectImageFiles(args, exts)
	if err != nil {
		return err
	}
	fmt.Printf("Images found: %d\n", len(files))

	found := len(files)
	if !force {
		files, err = filterIngested(ctx, store, files)
		if err != nil {
			return err
		}
	}
	skipped := found - len(files)
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}

	if len(files) == 0 {
		fmt.Println("All images already ingested!")
		return nil
	}

	fmt.Printf("Images to process: %d (skipping %d already ingested)\n\n", len(files), skipped)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Detecting faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var successCount, errorCount, totalFaces, newPersons int
	var mu sync.Mutex

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, path := range files {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			faces, created, err := ingestImage(ctx, engine, client, path)

			mu.Lock()
			if err != nil {
				errorCount++
			} else {
				successCount++
				totalFaces += faces
				newPersons += created
			}
			mu.Unlock()
			bar.Add(1)
		}(path)
	}

	wg.Wait()
	fmt.Println()

	finalFaceCount, _ := store.CountFaces(ctx)
	finalPersonCount, _ := store.CountPersons(ctx)
	fmt.Printf("\nCompleted: %d images processed, %d errors\n", successCount, errorCount)
	fmt.Printf("New faces assigned: %d (%d new persons)\n", totalFaces, newPersons)
	fmt.Printf("Total faces in database: %d (across %d persons)\n", finalFaceCount, finalPersonCount)

	return nil
}

// ingestImage runs the extract-filter-assign pipeline for one file. It
// returns the number of faces assigned and the number of persons created.
func ingestImage(ctx context.Context, engine *identity.Engine, client *extractor.Client, path string) (int, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var width, height int
	if imgCfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		width, height = imgCfg.Width, imgCfg.Height
	}

	extracted, err := client.ExtractFaces(ctx, data)
	if err != nil {
		// An extractor timeout means no faces for this image, not a
		// failed ingest.
		if extractor.IsTimeout(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to extract faces from %s: %w", path, err)
	}

	usable := extractor.UsableFaces(extracted.Faces, database.MinFaceWidthPx, database.MinDetScore, database.FaceEmbeddingDim)

	var created int
	for i := range usable {
		face := &database.Face{
			ImageID:     filepath.Base(path),
			Embedding:   usable[i].Embedding,
			BBox:        usable[i].BBox,
			DetScore:    usable[i].DetScore,
			CreatedAt:   time.Now(),
			ImagePath:   path,
			ImageWidth:  width,
			ImageHeight: height,
		}

		assigned, err := engine.Assign(ctx, face)
		if err != nil {
			return i, created, fmt.Errorf("failed to assign face: %w", err)
		}
		if assigned.PersonCreated {
			created++
		}
	}

	return len(usable), created, nil
}

// collectImageFiles expands the given paths into a sorted list of absolute
// image file paths, keeping only the configured extensions. The base name of
// a file becomes its image id, so duplicate base names are skipped.
func collectImageFiles(paths, exts []string) ([]string, error) {
	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(ext)] = true
	}

	var files []string
	seen := make(map[string]string)

	add := func(path string) error {
		if !allowed[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		base := filepath.Base(abs)
		if prev, ok := seen[base]; ok {
			if prev != abs {
				fmt.Printf("Warning: skipping %s, image id %s already used by %s\n", path, base, prev)
			}
			return nil
		}
		seen[base] = abs
		files = append(files, abs)
		return nil
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}

		if !info.IsDir() {
			if err := add(path); err != nil {
				return nil, err
			}
			continue
		}

		walkErr := filepath.WalkDir(path, func(entry string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			return add(entry)
		})
		if walkErr != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", path, walkErr)
		}
	}

	sort.Strings(files)
	return files, nil
}

// filterIngested drops files whose image id already has stored faces.
// Images that were processed before but yielded no usable faces are not
// remembered and get extracted again, which is harmless.
func filterIngested(ctx context.Context, store database.Store, files []string) ([]string, error) {
	faces, err := store.ListFaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list faces: %w", err)
	}

	ingested := make(map[string]bool, len(faces))
	for i := range faces {
		ingested[faces[i].ImageID] = true
	}

	remaining := make([]string, 0, len(files))
	for _, file := range files {
		if !ingested[filepath.Base(file)] {
			remaining = append(remaining, file)
		}
	}
	return remaining, nil
}
