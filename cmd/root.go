package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "class-attendance",
	Short: "Take classroom attendance from a single photo",
	Long: `Class Attendance marks students present or absent from one classroom photo.

The photo is split into overlapping tiles, faces are detected in every tile by an
external detector service, duplicates along the seams are removed, and each face
is matched against the enrolled profiles of the class roster. Teachers review the
proposal and confirm it through the API or the mark command.`,
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
