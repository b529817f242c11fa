package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-sorter",
	Short: "A face recognition service that sorts faces into persons",
	Long: `Face Sorter ingests photos, detects faces through an extractor
service and groups them into persons using embedding distance. Faces can be
corrected by hand, re-clustered in bulk and searched by similarity, either
from this CLI or through the bundled web API.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
