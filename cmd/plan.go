package cmd

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/class-attendance/internal/config"
)

var planCmd = &cobra.Command{
	Use:   "plan [photo]",
	Short: "Show how a photo is split into detection tiles",
	Long: `Show the detection tiles for a resolution and the largest face that is
guaranteed to appear whole in at least one tile.

The resolution comes from a photo or from --width and --height.

Examples:
  class-attendance plan class.jpg
  class-attendance plan --width 4000 --height 3000`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().Int("width", 0, "Image width in pixels")
	planCmd.Flags().Int("height", 0, "Image height in pixels")
}

func runPlan(cmd *cobra.Command, args []string) error {
	width := mustGetInt(cmd, "width")
	height := mustGetInt(cmd, "height")

	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening photo: %w", err)
		}
		defer f.Close()
		imgCfg, _, err := image.DecodeConfig(f)
		if err != nil {
			return fmt.Errorf("reading photo header: %w", err)
		}
		width, height = imgCfg.Width, imgCfg.Height
	}
	if width <= 0 || height <= 0 {
		return errors.New("a photo or positive --width and --height are required")
	}

	layout := config.DefaultPipeline().Layout
	tiles := layout.Plan(width, height)

	fmt.Printf("Image %dx%d, %d tiles\n\n", width, height, len(tiles))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TILE\tX1\tY1\tX2\tY2\tSIZE")
	fmt.Fprintln(w, "----\t--\t--\t--\t--\t----")
	for _, t := range tiles {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%dx%d\n", t.Index,
			t.Rect.Min.X, t.Rect.Min.Y, t.Rect.Max.X, t.Rect.Max.Y, t.Rect.Dx(), t.Rect.Dy())
	}
	w.Flush()

	maxW, maxH := layout.Guarantee(width, height)
	fmt.Printf("\nFaces up to %dx%d are always seen whole by at least one tile\n", maxW, maxH)
	return nil
}
