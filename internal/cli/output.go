// Package cli provides output formatting and an HTTP client for the docuchat CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/docuchat/internal/models"
	"github.com/hyperjump/docuchat/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes a chat answer. The text form ends with the conversation id so follow-up
// questions can pass it back.
func WriteAnswer(w io.Writer, resp *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "%s\n\n", resp.Data.Content)
	fmt.Fprintf(w, "conversation: %s\n", resp.SessionID)
	return nil
}

// WriteFiles writes a file listing.
func WriteFiles(w io.Writer, files []models.FileEntry, format OutputFormat) error {
	if format == OutputJSON {
		if files == nil {
			files = []models.FileEntry{}
		}
		return writeJSON(w, files)
	}
	if len(files) == 0 {
		fmt.Fprintln(w, "no files")
		return nil
	}
	for _, f := range files {
		fmt.Fprintf(w, "%-40s  %-28s  %s\n", utils.Truncate(f.Name, 37), f.Type, f.URL)
	}
	return nil
}

// WriteUpload writes the result of one upload.
func WriteUpload(w io.Writer, name string, resp *models.UploadResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "%s: %d chunk(s), file id %s\n", name, resp.Chunks, resp.FileID)
	if resp.Warning != "" {
		fmt.Fprintf(w, "  warning: %s\n", resp.Warning)
	}
	return nil
}

// WriteStatus writes the /status payload. Counts come first, then the configuration block.
func WriteStatus(w io.Writer, status map[string]interface{}, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	for _, key := range []string{"files", "collections", "vectors", "sessions", "disk_usage_bytes"} {
		if v, ok := status[key]; ok {
			fmt.Fprintf(w, "%-22s %v\n", key+":", v)
		}
	}
	cfg, ok := status["config"].(map[string]interface{})
	if !ok || len(cfg) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# configuration")
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-22s %v\n", k+":", cfg[k])
	}
	return nil
}
