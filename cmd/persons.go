package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kozaktomas/face-sorter/internal/config"
	"github.com/spf13/cobra"
)

var personsCmd = &cobra.Command{
	Use:   "persons",
	Short: "Person registry commands",
	Long:  `Commands for listing and renaming the persons faces are sorted into.`,
}

var personsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all persons with their face counts",
	RunE:  runPersonsList,
}

var personsRenameCmd = &cobra.Command{
	Use:   "rename <person-id> <name>",
	Short: "Rename a person",
	Long: `Rename a person. Renaming replaces the generated "Person N" name with a
real one and makes the person easier to find in the web UI.`,
	Args: cobra.ExactArgs(2),
	RunE: runPersonsRename,
}

func init() {
	rootCmd.AddCommand(personsCmd)
	personsCmd.AddCommand(personsListCmd)
	personsCmd.AddCommand(personsRenameCmd)
}

func runPersonsList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	policy, err := defaultPolicy(cfg)
	if err != nil {
		return err
	}
	engine, err := initEngine(cfg, policy)
	if err != nil {
		return err
	}

	summaries, err := engine.Persons(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list persons: %w", err)
	}

	if len(summaries) == 0 {
		fmt.Println("No persons yet")
		return nil
	}

	fmt.Printf("%-6s %-30s %s\n", "ID", "NAME", "FACES")
	for _, summary := range summaries {
		fmt.Printf("%-6d %-30s %d\n", summary.ID, summary.Name, summary.FaceCount)
	}
	fmt.Printf("\nTotal: %d persons\n", len(summaries))
	return nil
}

func runPersonsRename(cmd *cobra.Command, args []string) error {
	personID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || personID <= 0 {
		return fmt.Errorf("invalid person id %q", args[0])
	}

	cfg := config.Load()

	policy, err := defaultPolicy(cfg)
	if err != nil {
		return err
	}
	engine, err := initEngine(cfg, policy)
	if err != nil {
		return err
	}

	person, err := engine.RenamePerson(context.Background(), personID, args[1])
	if err != nil {
		return fmt.Errorf("failed to rename person %d: %w", personID, err)
	}

	fmt.Printf("Renamed person %d to %q\n", person.ID, person.Name)
	return nil
}
