package cmd

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/class-attendance/internal/annotate"
	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/facematch"
)

var markCmd = &cobra.Command{
	Use:   "mark <photo>",
	Short: "Run automatic attendance on a classroom photo",
	Long: `Run automatic attendance on a local classroom photo.

The photo is scanned against the enrolled faces of the class and the proposed
present and absent students are printed. The session for the slot is created if
needed and the annotated proof image is stored with it. Records are only written
with --save; approved OD and ML statuses are kept, an earlier NT is replaced.

Examples:
  # Preview attendance for period 2 today
  class-attendance mark class.jpg --class CSE3A --subject CS301 --teacher 7 --period 2

  # Store the result and write the annotated photo next to it
  class-attendance mark class.jpg --class CSE3A --subject CS301 --teacher 7 --period 2 \
    --save --out class-annotated.jpg

  # Output as JSON
  class-attendance mark class.jpg --class CSE3A --subject CS301 --teacher 7 --period 2 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runMark,
}

func init() {
	rootCmd.AddCommand(markCmd)

	markCmd.Flags().String("class", "", "Class ID (required)")
	markCmd.Flags().String("subject", "", "Subject code (required)")
	markCmd.Flags().Int64("teacher", 0, "Teacher ID (required)")
	markCmd.Flags().String("date", "", "Date as YYYY-MM-DD (default today)")
	markCmd.Flags().Int("period", 0, fmt.Sprintf("Period %d-%d (required)", attendance.MinPeriod, attendance.MaxPeriod))
	markCmd.Flags().Float64("threshold", 0, "Override the match threshold (0 uses MATCH_THRESHOLD)")
	markCmd.Flags().String("out", "", "Write the annotated photo to this path")
	markCmd.Flags().Bool("save", false, "Store the proposed statuses as attendance records")
	markCmd.Flags().Bool("json", false, "Output as JSON")
}

// MarkOutput is the JSON form of a mark run.
type MarkOutput struct {
	SessionID       int64              `json:"session_id"`
	ScanID          string             `json:"scan_id"`
	Faces           []MarkFace         `json:"faces"`
	Outcome         attendance.Outcome `json:"outcome"`
	MissingProfiles []string           `json:"missing_profiles"`
	FailedTiles     int                `json:"failed_tiles"`
	Saved           bool               `json:"saved"`
}

// MarkFace is one detected face of the scan.
type MarkFace struct {
	RegNo      string    `json:"reg_no"`
	Similarity float64   `json:"similarity"`
	Score      float64   `json:"score"`
	BBox       []float64 `json:"bbox"`
}

func parseSlotFlags(cmd *cobra.Command) (attendance.Slot, error) {
	date := time.Now()
	if s := mustGetString(cmd, "date"); s != "" {
		d, err := attendance.ParseDate(s)
		if err != nil {
			return attendance.Slot{}, err
		}
		date = d
	}
	slot := attendance.Slot{
		ClassID:     facematch.NormalizeIdentifier(mustGetString(cmd, "class")),
		SubjectCode: strings.TrimSpace(mustGetString(cmd, "subject")),
		TeacherID:   mustGetInt64(cmd, "teacher"),
		Date:        date,
		Period:      mustGetInt(cmd, "period"),
	}
	return slot, slot.Validate()
}

func runMark(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	save := mustGetBool(cmd, "save")
	outPath := mustGetString(cmd, "out")

	slot, err := parseSlotFlags(cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading photo: %w", err)
	}

	cfg := config.Load()
	if t := mustGetFloat64(cmd, "threshold"); t != 0 {
		cfg.Pipeline.MatchThreshold = t
	}

	ctx := context.Background()
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if !jsonOutput {
		layout := cfg.Pipeline.Layout
		bar := progressbar.NewOptions(len(layout.Rows)*len(layout.Columns),
			progressbar.OptionSetDescription("Detecting faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("tiles"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		a.attendance.Pipeline.OnProgress = func(info attendance.ProgressInfo) {
			if info.Err != nil {
				bar.Describe(fmt.Sprintf("Tile %d failed", info.Tile))
			}
			_ = bar.Add(1)
		}
	}

	res, err := a.attendance.Auto(ctx, slot, data)
	if err != nil {
		return fmt.Errorf("scanning photo: %w", err)
	}

	if outPath != "" {
		img, err := annotate.EncodeJPEG(res.Scan.Annotated, cfg.Pipeline.ProofQuality)
		if err != nil {
			return fmt.Errorf("encoding annotated photo: %w", err)
		}
		if err := os.WriteFile(outPath, img, 0o644); err != nil {
			return fmt.Errorf("writing annotated photo: %w", err)
		}
	}

	if save {
		if _, err := a.attendance.Manual(ctx, slot, res.Outcome.Records()); err != nil {
			return fmt.Errorf("saving records: %w", err)
		}
	}

	if jsonOutput {
		return outputJSON(markOutput(res, save))
	}

	printMarkResult(res, slot)
	if outPath != "" {
		fmt.Printf("Annotated photo written to %s\n", outPath)
	}
	if save {
		fmt.Printf("Saved %d records to session %d\n", len(res.Outcome.Records()), res.Session.ID)
	} else {
		fmt.Println("Nothing recorded yet. Re-run with --save to store these statuses.")
	}
	return nil
}

func markOutput(res *attendance.AutoResult, saved bool) MarkOutput {
	faces := make([]MarkFace, len(res.Scan.Matches))
	for i, m := range res.Scan.Matches {
		faces[i] = MarkFace{
			RegNo:      annotate.Label(m),
			Similarity: m.Similarity,
			Score:      m.Detection.Score,
			BBox:       m.Detection.BBox.Slice(),
		}
	}
	missing := res.MissingProfiles
	if missing == nil {
		missing = []string{}
	}
	return MarkOutput{
		SessionID:       res.Session.ID,
		ScanID:          res.Scan.ScanID,
		Faces:           faces,
		Outcome:         res.Outcome,
		MissingProfiles: missing,
		FailedTiles:     res.Scan.FailedTiles,
		Saved:           saved,
	}
}

func printMarkResult(res *attendance.AutoResult, slot attendance.Slot) {
	names := make(map[string]string, len(res.Students))
	for _, st := range res.Students {
		names[st.RegNo] = st.Name
	}

	fmt.Printf("\nSession %d: %s %s, %s period %d\n", res.Session.ID,
		slot.ClassID, slot.SubjectCode, slot.Date.Format(time.DateOnly), slot.Period)
	fmt.Printf("Faces: %d detected, %d after de-duplication, %d unknown",
		res.Scan.RawDetections, len(res.Scan.Matches), res.Scan.Unmatched())
	if res.Scan.FailedTiles > 0 {
		fmt.Printf(" (%d of %d tiles failed)", res.Scan.FailedTiles, res.Scan.Tiles)
	}
	fmt.Println()
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REG NO\tNAME\tSTATUS")
	fmt.Fprintln(w, "------\t----\t------")
	for _, id := range res.Outcome.Present {
		fmt.Fprintf(w, "%s\t%s\t%s\n", id, names[id], attendance.StatusPresent)
	}
	for _, id := range res.Outcome.Absent {
		fmt.Fprintf(w, "%s\t%s\t%s\n", id, names[id], attendance.StatusAbsent)
	}
	for _, id := range slices.Sorted(maps.Keys(res.Outcome.Locked)) {
		fmt.Fprintf(w, "%s\t%s\t%s (kept)\n", id, names[id], res.Outcome.Locked[id])
	}
	w.Flush()

	if len(res.Outcome.Duplicates) > 0 {
		fmt.Printf("\nMatched by more than one face: %s\n", strings.Join(res.Outcome.Duplicates, ", "))
	}
	if len(res.MissingProfiles) > 0 {
		fmt.Printf("No enrolled face: %s\n", strings.Join(res.MissingProfiles, ", "))
	}
}
