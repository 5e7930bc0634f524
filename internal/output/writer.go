package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/gustycube/uplinks/internal/uplinks"
)

// Format represents the output format
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// ParseFormat maps a flag or config value to a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text", "tree":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// Streams reports whether the format is written while the tree is walked
func (f Format) Streams() bool { return f == FormatText }

// Writer writes collected trees in the configured format
type Writer struct {
	format    Format
	w         io.Writer
	csvWriter *csv.Writer
	mu        sync.Mutex
	hasHeader bool
}

// NewWriter creates a new output writer
func NewWriter(format string, w io.Writer) (*Writer, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	writer := &Writer{format: f, w: w}
	if f == FormatCSV {
		writer.csvWriter = csv.NewWriter(w)
	}
	return writer, nil
}

func (w *Writer) Format() Format { return w.format }

// WriteTree writes t in the configured format
func (w *Writer) WriteTree(t *uplinks.Tree) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.format {
	case FormatText:
		return WriteText(w.w, t)

	case FormatJSON:
		encoder := json.NewEncoder(w.w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(t)

	case FormatJSONL:
		// one object per uplink edge
		encoder := json.NewEncoder(w.w)
		for _, e := range t.Entries() {
			if err := encoder.Encode(e); err != nil {
				return err
			}
		}
		return nil

	case FormatCSV:
		return w.writeCSV(t)

	default:
		return fmt.Errorf("unsupported format: %s", w.format)
	}
}

func (w *Writer) writeCSV(t *uplinks.Tree) error {
	if !w.hasHeader {
		w.csvWriter.Write([]string{"level", "parent", "asn", "holder"})
		w.hasHeader = true
	}
	for _, e := range t.Entries() {
		w.csvWriter.Write([]string{
			strconv.Itoa(e.Level),
			e.Parent.String(),
			e.ASN.String(),
			e.Holder,
		})
	}
	return w.csvWriter.Error()
}

// Flush flushes any buffered data
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.csvWriter != nil {
		w.csvWriter.Flush()
		return w.csvWriter.Error()
	}
	return nil
}
