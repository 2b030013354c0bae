// Package cli formats command output for Compendium.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/compendium/internal/models"
)

// OutputFormat selects how command results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat returns the format named s. Empty means text.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// WriteAnswer writes an answer to w. In text format a debug answer also
// shows the ranked chunks and the prompt sent to the model.
func WriteAnswer(w io.Writer, answer *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, answer)
	}
	fmt.Fprintln(w, answer.Answer)
	if answer.Fallback {
		fmt.Fprintln(w, "\n(no answer found in the document)")
	}
	if len(answer.Ranked) > 0 {
		fmt.Fprintf(w, "\n--- Ranked chunks for %s ---\n", answer.DocID)
		for i, r := range answer.Ranked {
			fmt.Fprintf(w, "%d. chunk %d | score %.4f\n   %s\n", i+1, r.ChunkID, r.Score, TruncateWords(r.Text, 30))
		}
	}
	if answer.Prompt != "" {
		fmt.Fprintf(w, "\n--- Prompt ---\n%s\n", answer.Prompt)
	}
	fmt.Fprintf(w, "\n(%dms)\n", answer.TookMs)
	return nil
}

// WriteIngestResult writes the outcome of an ingestion to w.
func WriteIngestResult(w io.Writer, res *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Ingested %s: %d chunks in %dms\n", res.DocID, res.Chunks, res.TookMs)
	if res.Truncations > 0 {
		fmt.Fprintf(w, "Warning: %d chunks were truncated; some text was not stored\n", res.Truncations)
	}
	return nil
}

// WriteStatus writes service status to w.
func WriteStatus(w io.Writer, st *models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Documents:        %d\n", st.Documents)
	fmt.Fprintf(w, "Chunks:           %d\n", st.Chunks)
	fmt.Fprintf(w, "Keyword chunks:   %d\n", st.KeywordChunks)
	fmt.Fprintf(w, "Disk usage:       %s\n", FormatBytes(st.DiskUsageBytes))
	fmt.Fprintf(w, "Storage backend:  %s\n", st.StorageBackend)
	fmt.Fprintf(w, "Embedding model:  %s\n", st.EmbeddingModel)
	fmt.Fprintf(w, "Answering model:  %s\n", st.AnsweringModel)
	for _, d := range st.WatchDirectories {
		fmt.Fprintf(w, "Watching:         %s\n", d)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatBytes renders n bytes with a binary unit, e.g. "1.5 KiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// TruncateWords returns up to maxWords words of s, joined by single spaces.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
