// Package datalog appends samples to daily tab-separated text files.
// Files rotate per UTC calendar day so no single file grows unbounded.
package datalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/synchlab/pvlogger/pkg/types"
)

const ProgramName = "pvlogger"

// Writer owns the daily file layout under one base directory. It is the
// sole writer for that directory during a run; Append is only ever called
// from the recorder's single sampling loop, so no locking is needed.
type Writer struct {
	baseDir   string
	extension string
	names     []types.PVName
}

func NewWriter(baseDir string, names []types.PVName) *Writer {
	return &Writer{
		baseDir:   baseDir,
		extension: "txt",
		names:     names,
	}
}

// FilePath returns the daily file for the given instant. The calendar date
// is taken in UTC so local offsets and DST transitions cannot split a day.
func (w *Writer) FilePath(when time.Time) string {
	dt := when.UTC()
	return filepath.Join(
		w.baseDir,
		fmt.Sprintf("%04d", dt.Year()),
		fmt.Sprintf("%02d", int(dt.Month())),
		fmt.Sprintf("%04d-%02d-%02d.%s", dt.Year(), int(dt.Month()), dt.Day(), w.extension),
	)
}

// Append writes sample as one row, creating the daily file and its
// directories first when needed. A file that already exists, from this run
// or an earlier one, is only ever appended to; its header is never
// rewritten, even if the PV list differs from whatever header is already
// present.
func (w *Writer) Append(sample *types.Sample) error {
	fname := w.FilePath(sample.CaptureTime)
	if err := os.MkdirAll(filepath.Dir(fname), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	_, statErr := os.Stat(fname)
	needHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(fname, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if needHeader {
		log.Debugf("creating log file %s", fname)
		if _, err := f.WriteString(w.header(fname)); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	row := w.row(sample)
	if _, err := f.WriteString(row); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	log.Debug(strings.TrimSuffix(row, "\n"))

	// The file is closed after every row, so a tailing reader observes
	// each cycle promptly and a crash loses at most the in-flight row.
	return nil
}

// Close releases the writer. The file handle is opened and closed per
// append, so there is nothing to flush here.
func (w *Writer) Close() error {
	return nil
}

func (w *Writer) header(fname string) string {
	created := time.Now().Format("2006-01-02 15:04:05")
	var b strings.Builder
	fmt.Fprintf(&b, "# file: %s\n", fname)
	fmt.Fprintf(&b, "# created: %s\n", created)
	fmt.Fprintf(&b, "# program: %s\n", ProgramName)
	b.WriteString("# column separator: tab (^T or \\t)\n")
	b.WriteString("#\n")
	b.WriteString("# time: (UTC) seconds (since 1970-01-01T00:00:00 UTC)\n")
	b.WriteString("#\n")
	b.WriteString("time")
	for _, name := range w.names {
		b.WriteString("\t")
		b.WriteString(string(name))
	}
	b.WriteString("\tymd hms\n")
	return b.String()
}

func (w *Writer) row(sample *types.Sample) string {
	fields := make([]string, 0, len(sample.Readings)+2)
	epoch := float64(sample.CaptureTime.UnixNano()) / float64(time.Second)
	fields = append(fields, fmt.Sprintf("%.2f", epoch))
	for _, r := range sample.Readings {
		fields = append(fields, r.Value.Render())
	}
	// Trailing human-readable rendering of the capture instant, local time.
	fields = append(fields, sample.CaptureTime.Format("2006-01-02 15:04:05"))
	return strings.Join(fields, "\t") + "\n"
}
