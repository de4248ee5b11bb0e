// package formatter renders genre analyses as terminal tables and exports them to CSV, Markdown, plain text or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/genrescope/internal/models"
	"github.com/desertthunder/genrescope/internal/shared"
	"github.com/olekukonko/tablewriter"
)

// Format is an export format name.
type Format string

const (
	FormatTable    Format = "table"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
)

// Formats lists every supported format.
var Formats = []Format{FormatTable, FormatCSV, FormatMarkdown, FormatText, FormatJSON}

// ParseFormat parses a format name; "md" and "text" are accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case "md":
		return FormatMarkdown, nil
	case "text":
		return FormatText, nil
	case FormatTable, FormatCSV, FormatMarkdown, FormatText, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Ext returns the file extension used when exporting f.
func (f Format) Ext() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatCSV:
		return ".csv"
	case FormatJSON:
		return ".json"
	default:
		return ".txt"
	}
}

// Rows returns the ranked genre rows (rank, genre, tracks, share). top <= 0 keeps every genre.
func Rows(a *models.Analysis, top int) [][]string {
	counts := a.GenreCounts.Top(top)
	rows := make([][]string, 0, len(counts))
	for i, gc := range counts {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			gc.Genre,
			strconv.Itoa(gc.Count),
			FormatShare(a.Share(gc.Count)),
		})
	}
	return rows
}

// FormatShare renders a fraction as a percentage with one decimal.
func FormatShare(share float64) string {
	return strconv.FormatFloat(share*100, 'f', 1, 64) + "%"
}

// Summary is the one-line metrics summary printed under tables.
func Summary(m models.Metrics) string {
	return fmt.Sprintf("%d tracks · %d artists · %d genres", m.TotalTracks, m.UniqueArtists, m.TotalGenres)
}

// WriteTable renders the ranked genres as a table followed by the metrics summary.
func WriteTable(w io.Writer, a *models.Analysis, top int) error {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.Header([]string{"Rank", "Genre", "Tracks", "Share"})
	for _, row := range Rows(a, top) {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to append table row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	fmt.Fprintf(&buf, "%s\n", Summary(a.Metrics))

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}

// ExportToCSV converts the genre ranking to CSV with columns: Rank, Genre, Tracks, Share
func ExportToCSV(a *models.Analysis, top int) ([]byte, error) {
	return writeCSV([]string{"Rank", "Genre", "Tracks", "Share"}, Rows(a, top))
}

// ExportTracksToCSV converts the analyzed tracks to CSV with columns: ID, Name, Artists, Genres.
//
// Multi-valued cells are joined with "; ".
func ExportTracksToCSV(a *models.Analysis) ([]byte, error) {
	rows := make([][]string, 0, len(a.Tracks))
	for _, t := range a.Tracks {
		rows = append(rows, []string{t.ID, t.Name, strings.Join(t.Artists, "; "), strings.Join(t.Genres, "; ")})
	}
	return writeCSV([]string{"ID", "Name", "Artists", "Genres"}, rows)
}

func writeCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, record := range rows {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts an analysis to Markdown: metrics, a genre table and the track list.
//
// title defaults to the playlist ID.
func ExportToMarkdown(a *models.Analysis, title string, top int) ([]byte, error) {
	var buf bytes.Buffer

	if title == "" {
		title = a.PlaylistID
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)

	fmt.Fprintf(&buf, "**Tracks**: %d\n", a.Metrics.TotalTracks)
	fmt.Fprintf(&buf, "**Artists**: %d\n", a.Metrics.UniqueArtists)
	fmt.Fprintf(&buf, "**Genres**: %d\n\n", a.Metrics.TotalGenres)

	buf.WriteString("## Genres\n\n")
	buf.WriteString("| Rank | Genre | Tracks | Share |\n")
	buf.WriteString("| ---: | --- | ---: | ---: |\n")
	for _, row := range Rows(a, top) {
		fmt.Fprintf(&buf, "| %s |\n", strings.Join(escapeCells(row), " | "))
	}

	buf.WriteString("\n## Tracks\n\n")
	for i, t := range a.Tracks {
		genres := "no genres"
		if len(t.Genres) > 0 {
			genres = strings.Join(t.Genres, ", ")
		}
		fmt.Fprintf(&buf, "%d. %s - %s [%s]\n", i+1, strings.Join(t.Artists, ", "), t.Name, genres)
	}

	return buf.Bytes(), nil
}

func escapeCells(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = strings.ReplaceAll(cell, "|", `\|`)
	}
	return out
}

// ExportToText converts an analysis to plain text
func ExportToText(a *models.Analysis, top int) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", a.PlaylistID)
	fmt.Fprintf(&buf, "Tracks: %d\n", a.Metrics.TotalTracks)
	fmt.Fprintf(&buf, "Artists: %d\n", a.Metrics.UniqueArtists)
	fmt.Fprintf(&buf, "Genres: %d\n\n", a.Metrics.TotalGenres)

	for _, row := range Rows(a, top) {
		fmt.Fprintf(&buf, "%s. %s (%s tracks, %s)\n", row[0], row[1], row[2], row[3])
	}

	return buf.Bytes(), nil
}

// Export renders a in format. top limits the genre ranking of every format except JSON, which is always complete.
func Export(a *models.Analysis, format Format, top int) ([]byte, error) {
	switch format {
	case FormatTable:
		var buf bytes.Buffer
		if err := WriteTable(&buf, a, top); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatCSV:
		return ExportToCSV(a, top)
	case FormatMarkdown:
		return ExportToMarkdown(a, "", top)
	case FormatText:
		return ExportToText(a, top)
	case FormatJSON:
		return shared.MarshalJSON(a, true)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteExport writes a to path in format and returns the files created.
//
// path defaults to {playlist_id}_genres{ext}. CSV exports also write the track list next to it as {base}_tracks.csv.
func WriteExport(a *models.Analysis, format Format, path string) ([]string, error) {
	if path == "" {
		path = a.PlaylistID + "_genres" + format.Ext()
	}

	data, err := Export(a, format, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s export: %w", format, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s file: %w", format, err)
	}
	files := []string{path}

	if format == FormatCSV {
		tracks, err := ExportTracksToCSV(a)
		if err != nil {
			return nil, fmt.Errorf("failed to generate track CSV: %w", err)
		}

		base := strings.TrimSuffix(path, filepath.Ext(path))
		base = strings.TrimSuffix(base, "_genres")
		tracksFile := base + "_tracks.csv"
		if err := os.WriteFile(tracksFile, tracks, 0644); err != nil {
			return nil, fmt.Errorf("failed to write track CSV file: %w", err)
		}
		files = append(files, tracksFile)
	}

	return files, nil
}
