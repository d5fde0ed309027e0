package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/class-attendance/internal/config"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Manage enrolled student faces",
}

var facesEnrollCmd = &cobra.Command{
	Use:   "enroll <reg-no> <photo>",
	Short: "Enroll a student's face from a portrait photo",
	Long: `Enroll a student's face from a portrait photo.

The photo must contain exactly one face. An earlier profile of the student is
replaced. Enrolled students whose faces look similar are listed as a warning.

Examples:
  class-attendance faces enroll 21CS001 portrait.jpg`,
	Args: cobra.ExactArgs(2),
	RunE: runFacesEnroll,
}

var facesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled face profiles",
	Args:  cobra.NoArgs,
	RunE:  runFacesList,
}

var facesDeleteCmd = &cobra.Command{
	Use:   "delete <reg-no>",
	Short: "Delete a student's face profile and stored photos",
	Args:  cobra.ExactArgs(1),
	RunE:  runFacesDelete,
}

func init() {
	rootCmd.AddCommand(facesCmd)
	facesCmd.AddCommand(facesEnrollCmd, facesListCmd, facesDeleteCmd)

	facesListCmd.Flags().Bool("json", false, "Output as JSON")
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

func runFacesEnroll(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading photo: %w", err)
	}

	ctx := context.Background()
	a, err := openApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()
	a.initProfileHNSW(ctx)

	res, err := a.enroll.Enroll(ctx, args[0], data)
	if err != nil {
		return err
	}
	a.saveProfileHNSW(ctx)

	fmt.Printf("Enrolled %s (profile %d, face score %.2f)\n", res.Profile.RegNo, res.Profile.ID, res.Detection.Score)
	fmt.Printf("Photo stored at %s\n", res.ImagePath)
	if len(res.Collisions) > 0 {
		fmt.Println("\nWarning: similar faces already enrolled:")
		for _, c := range res.Collisions {
			fmt.Printf("  %s  similarity %.3f\n", c.RegNo, c.Similarity)
		}
	}
	return nil
}

func runFacesList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()

	profiles, err := a.enroll.List(ctx)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		type profileOutput struct {
			RegNo     string    `json:"reg_no"`
			Model     string    `json:"model"`
			Dim       int       `json:"dim"`
			UpdatedAt time.Time `json:"updated_at"`
		}
		out := make([]profileOutput, len(profiles))
		for i, p := range profiles {
			out[i] = profileOutput{RegNo: p.RegNo, Model: p.Model, Dim: p.Dim, UpdatedAt: p.UpdatedAt}
		}
		return outputJSON(out)
	}

	if len(profiles) == 0 {
		fmt.Println("No faces enrolled")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REG NO\tMODEL\tDIM\tUPDATED")
	fmt.Fprintln(w, "------\t-----\t---\t-------")
	for _, p := range profiles {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.RegNo, p.Model, p.Dim, p.UpdatedAt.Format(time.DateTime))
	}
	w.Flush()
	fmt.Printf("\nTotal: %d profiles\n", len(profiles))
	return nil
}

func runFacesDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()
	a.initProfileHNSW(ctx)

	deleted, err := a.enroll.Delete(ctx, args[0])
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Printf("No profile enrolled for %s\n", args[0])
		return nil
	}
	a.saveProfileHNSW(ctx)
	fmt.Printf("Deleted profile of %s\n", args[0])
	return nil
}
