package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/kozaktomas/face-sorter/internal/config"
	"github.com/kozaktomas/face-sorter/internal/constants"
	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/database/mariadb"
	"github.com/kozaktomas/face-sorter/internal/facematch"
	"github.com/kozaktomas/face-sorter/internal/identity"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import person names from a legacy PhotoPrism library",
	Long: `Match stored faces against the face markers of a legacy PhotoPrism
MariaDB database and carry the person names over.

Markers are matched to faces of the same image by bounding box overlap.
A manually confirmed marker moves its face to the named person and pins it
there. An automatic marker only names the owning person, and only while the
person still carries a generated "Person N" name. Embeddings are never
transferred.

Requires LEGACY_DATABASE_URL, e.g.:
  photoprism:photoprism@tcp(mariadb:3306)/photoprism

Examples:
  # See what the import would change
  face-sorter import --dry-run

  # Apply marker names to the collection
  face-sorter import`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("dry-run", false, "Report what would change without writing")
}

// generatedNameRe matches the sequence names the registry hands out.
var generatedNameRe = regexp.MustCompile(`^Person [0-9]+$`)

func runImport(cmd *cobra.Command, args []string) error {
	dryRun := mustGetBool(cmd, "dry-run")

	ctx := context.Background()
	cfg := config.Load()

	if cfg.Legacy.DatabaseURL == "" {
		return errors.New("LEGACY_DATABASE_URL environment variable is required")
	}

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

	fmt.Println("Connecting to legacy MariaDB...")
	legacy, err := mariadb.NewPool(cfg.Legacy.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to MariaDB: %w", err)
	}
	defer legacy.Close()

	markers, err := legacy.ListFaceMarkers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list face markers: %w", err)
	}
	fmt.Printf("Face markers found: %d\n", len(markers))
	if len(markers) == 0 {
		return nil
	}

	markersByImage := groupMarkersByImage(markers)

	faces, err := store.ListFaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to list faces: %w", err)
	}
	fmt.Printf("Stored faces: %d\n\n", len(faces))

	bar := progressbar.NewOptions(len(faces),
		progressbar.OptionSetDescription("Matching markers"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("faces"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	counts := make(map[facematch.MatchAction]int)
	errorCount := 0
	for i := range faces {
		action, err := importFace(ctx, engine, store, &faces[i], markersByImage, dryRun)
		if err != nil {
			errorCount++
		} else {
			counts[action]++
		}
		bar.Add(1)
	}
	fmt.Println()

	fmt.Printf("\nNames applied:  %d\n", counts[facematch.ActionApplyName])
	fmt.Printf("Manual moves:   %d\n", counts[facematch.ActionMoveManual])
	fmt.Printf("Already named:  %d\n", counts[facematch.ActionAlreadyDone])
	fmt.Printf("Skipped:        %d\n", counts[facematch.ActionSkipped])
	fmt.Printf("No match:       %d\n", counts[facematch.ActionNoMatch])
	if errorCount > 0 {
		fmt.Printf("Errors:         %d\n", errorCount)
	}
	if dryRun {
		fmt.Println("\nDry run, nothing was written")
	}
	return nil
}

// importFace matches one stored face against the markers of its image and
// applies the marker name. Manual markers move the face to the named person,
// automatic markers only rename generated persons.
func importFace(
	ctx context.Context,
	engine *identity.Engine,
	store database.Store,
	face *database.Face,
	markersByImage map[string][]facematch.MarkerInfo,
	dryRun bool,
) (facematch.MatchAction, error) {
	markers := markersByImage[face.ImageID]
	if len(markers) == 0 {
		return facematch.ActionNoMatch, nil
	}

	match := facematch.MatchFaceToMarkers(face.BBox, markers, face.ImageWidth, face.ImageHeight, constants.IoUThreshold)
	if match == nil {
		return facematch.ActionNoMatch, nil
	}

	owner, err := store.GetPerson(ctx, face.PersonID)
	if err != nil {
		return "", fmt.Errorf("failed to load person %d: %w", face.PersonID, err)
	}
	if owner != nil && owner.Name == match.Name {
		return facematch.ActionAlreadyDone, nil
	}

	if match.IsManual() {
		if dryRun {
			return facematch.ActionMoveManual, nil
		}
		target, err := findOrCreatePerson(ctx, engine, store, match.Name)
		if err != nil {
			return "", err
		}
		if _, err := engine.MoveFaceToPerson(ctx, face.ID, target.ID); err != nil {
			return "", fmt.Errorf("failed to move face %d: %w", face.ID, err)
		}
		return facematch.ActionMoveManual, nil
	}

	// An automatic marker must not overwrite a name a user chose.
	if owner == nil || !generatedNameRe.MatchString(owner.Name) {
		return facematch.ActionSkipped, nil
	}
	if dryRun {
		return facematch.ActionApplyName, nil
	}
	if _, err := engine.RenamePerson(ctx, face.PersonID, match.Name); err != nil {
		return "", fmt.Errorf("failed to rename person %d: %w", face.PersonID, err)
	}
	return facematch.ActionApplyName, nil
}

// findOrCreatePerson resolves a marker name to a person, creating one when
// the name is unknown.
func findOrCreatePerson(ctx context.Context, engine *identity.Engine, store database.Store, name string) (*database.Person, error) {
	person, err := store.GetPersonByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up person %q: %w", name, err)
	}
	if person != nil {
		return person, nil
	}

	person, err = engine.CreatePerson(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create person %q: %w", name, err)
	}
	return person, nil
}

// groupMarkersByImage indexes markers by the base name of their source file,
// the same key ingest uses as the image id.
func groupMarkersByImage(markers []mariadb.FaceMarker) map[string][]facematch.MarkerInfo {
	byImage := make(map[string][]facematch.MarkerInfo)
	for _, m := range markers {
		key := filepath.Base(m.FileName)
		byImage[key] = append(byImage[key], facematch.MarkerInfo{
			UID:     m.MarkerUID,
			Name:    m.Name,
			SubjSrc: m.SubjSrc,
			X:       m.X,
			Y:       m.Y,
			W:       m.W,
			H:       m.H,
		})
	}
	return byImage
}
