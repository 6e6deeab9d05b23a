package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/persondetect/detect-console/internal/history"
	"github.com/persondetect/detect-console/internal/models"
	"github.com/persondetect/detect-console/internal/uploader"
)

// Renderer formats component state as plain-text tables.
type Renderer struct {
	imageURL func(string) string
	now      func() time.Time
}

// NewRenderer builds image links with imageURL.
func NewRenderer(imageURL func(string) string) *Renderer {
	return &Renderer{imageURL: imageURL, now: time.Now}
}

// History writes the active filters, the current page of detections and the page controls.
func (r *Renderer) History(w io.Writer, snap history.Snapshot, pages []int) error {
	fmt.Fprintf(w, "Filters: %s\n", describeFilter(snap.Active))
	if !snap.Pending.Equal(snap.Active) {
		fmt.Fprintf(w, "Pending: %s (run \"apply\")\n", describeFilter(snap.Pending))
	}
	if snap.Loading {
		fmt.Fprintln(w, "Loading...")
	}

	if len(snap.Results) == 0 {
		fmt.Fprintln(w, "No detections found")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTIME\tPEOPLE\tCONFIDENCE\tPROCESSING\tIMAGE")
		for _, rec := range snap.Results {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n",
				rec.ID,
				r.timestamp(rec.Timestamp),
				rec.NumPeople,
				FormatConfidence(rec.ConfidenceScore),
				FormatProcessing(rec.ProcessingTimeSeconds),
				r.imageURL(rec.DetectedImagePath),
			)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(pages) > 0 {
		fmt.Fprintf(w, "Page %d of %d (%s detections): %s\n",
			snap.Page, snap.TotalPages, humanize.Comma(int64(snap.Total)), pageControls(pages, snap.Page))
	}
	if snap.LastError != nil {
		fmt.Fprintln(w, "Last refresh failed; showing previous results")
	}
	return nil
}

// Upload writes the uploader state.
func (r *Renderer) Upload(w io.Writer, view uploader.View) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "State:\t%s\n", view.State)
	if view.FileName != "" {
		fmt.Fprintf(tw, "File:\t%s (%s)\n", view.FileName, humanize.Bytes(uint64(view.FileSize)))
	}
	if url := view.DisplayURL(); url != "" {
		label := "Preview:"
		if view.DetectedURL != "" {
			label = "Detected:"
		}
		fmt.Fprintf(tw, "%s\t%s\n", label, url)
	}
	if d := view.Detection; d != nil {
		fmt.Fprintf(tw, "People:\t%d\n", d.NumPeople)
		fmt.Fprintf(tw, "Confidence:\t%s\n", FormatConfidence(d.ConfidenceScore))
		fmt.Fprintf(tw, "Processing:\t%s\n", FormatProcessing(d.ProcessingTimeSeconds))
	}
	return tw.Flush()
}

// FormatConfidence renders a [0,1] score as a percentage with two decimals.
func FormatConfidence(score float64) string {
	return strconv.FormatFloat(score*100, 'f', 2, 64) + "%"
}

// FormatProcessing renders seconds with millisecond precision.
func FormatProcessing(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64) + "s"
}

func (r *Renderer) timestamp(ts time.Time) string {
	return ts.UTC().Format("2006-01-02 15:04:05") + " (" + humanize.RelTime(ts, r.now(), "ago", "from now") + ")"
}

func describeFilter(f models.FilterCriteria) string {
	if f.IsEmpty() {
		return "none"
	}
	parts := make([]string, 0, 3)
	if f.MinPeople != nil {
		parts = append(parts, fmt.Sprintf("min-people=%d", *f.MinPeople))
	}
	if f.MaxPeople != nil {
		parts = append(parts, fmt.Sprintf("max-people=%d", *f.MaxPeople))
	}
	if f.MinConfidence != nil {
		parts = append(parts, "min-confidence="+strconv.FormatFloat(*f.MinConfidence, 'f', -1, 64))
	}
	return strings.Join(parts, " ")
}

func pageControls(pages []int, current int) string {
	labels := make([]string, len(pages))
	for i, p := range pages {
		if p == current {
			labels[i] = fmt.Sprintf("[%d]", p)
		} else {
			labels[i] = strconv.Itoa(p)
		}
	}
	return strings.Join(labels, " ")
}
