package exif

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"flambient/internal/exposure"
	"flambient/internal/logging"
	"flambient/internal/services"
)

const (
	// FieldDateTimeOriginal and FieldSubSecTimeOriginal are always extracted
	// so frames can be ordered by capture time.
	FieldDateTimeOriginal   = "DateTimeOriginal"
	FieldSubSecTimeOriginal = "SubSecTimeOriginal"

	sourceFileColumn = "SourceFile"
	timestampLayout  = "2006:01:02 15:04:05"
)

// DefaultExtensions lists the file extensions passed to exiftool.
var DefaultExtensions = []string{
	"jpg", "jpeg", "tif", "tiff", "png",
	"dng", "cr2", "cr3", "nef", "arw", "raf", "orf", "rw2",
}

// Record is one image row with every requested field as a raw/label pair.
type Record struct {
	SourceFile string
	Fields     map[string]exposure.FieldValue
}

// Extractor wraps the exiftool binary.
type Extractor struct {
	binary     string
	exec       services.Executor
	extensions []string
	logger     *slog.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithExecutor overrides the command executor (used by tests).
func WithExecutor(exec services.Executor) Option {
	return func(e *Extractor) {
		if exec != nil {
			e.exec = exec
		}
	}
}

// WithExtensions restricts the file extensions exiftool reads.
func WithExtensions(exts ...string) Option {
	return func(e *Extractor) {
		if len(exts) > 0 {
			e.extensions = exts
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New constructs an Extractor for the given exiftool binary.
func New(binary string, opts ...Option) *Extractor {
	if strings.TrimSpace(binary) == "" {
		binary = "exiftool"
	}
	e := &Extractor{
		binary:     binary,
		exec:       services.CommandExecutor{},
		extensions: DefaultExtensions,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "exif")
	return e
}

// Extract reads fields for every image in dir. exiftool runs twice, once with
// -n for raw values and once for printable labels, and the two CSV outputs are
// merged row by row. The capture time fields are always included.
func (e *Extractor) Extract(ctx context.Context, dir string, fields []string) ([]Record, error) {
	tags := requestedTags(fields)

	rawOut, err := e.exec.Output(ctx, e.binary, e.args(dir, tags, true)...)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "exif", "extract raw values", "exiftool failed", err)
	}
	labelOut, err := e.exec.Output(ctx, e.binary, e.args(dir, tags, false)...)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "exif", "extract labels", "exiftool failed", err)
	}

	rawRows, err := parseCSV(rawOut)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "exif", "parse raw values", "invalid exiftool CSV", err)
	}
	labelRows, err := parseCSV(labelOut)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "exif", "parse labels", "invalid exiftool CSV", err)
	}

	records, err := merge(rawRows, labelRows)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "exif", "merge", "raw and label passes disagree", err)
	}
	e.logger.Debug("exif extracted",
		logging.String("dir", dir),
		logging.Int("records", len(records)),
		logging.String("fields", strings.Join(tags, ",")),
	)
	return records, nil
}

func (e *Extractor) args(dir string, tags []string, raw bool) []string {
	args := []string{"-csv", "-q", "-q"}
	if raw {
		args = append(args, "-n")
	}
	for _, ext := range e.extensions {
		args = append(args, "-ext", ext)
	}
	for _, tag := range tags {
		args = append(args, "-"+tag)
	}
	return append(args, dir)
}

func requestedTags(fields []string) []string {
	tags := []string{FieldDateTimeOriginal, FieldSubSecTimeOriginal}
	seen := map[string]struct{}{FieldDateTimeOriginal: {}, FieldSubSecTimeOriginal: {}}
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		tags = append(tags, field)
	}
	return tags
}

type csvRow struct {
	sourceFile string
	values     map[string]string
}

func parseCSV(data []byte) ([]csvRow, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	sourceIdx := -1
	for i, name := range header {
		if name == sourceFileColumn {
			sourceIdx = i
			break
		}
	}
	if sourceIdx < 0 {
		return nil, fmt.Errorf("missing %s column", sourceFileColumn)
	}

	var rows []csvRow
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		row := csvRow{values: make(map[string]string, len(header)-1)}
		for i, name := range header {
			value := ""
			if i < len(fields) {
				value = fields[i]
			}
			if i == sourceIdx {
				row.sourceFile = value
				continue
			}
			row.values[name] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// merge pairs raw and label rows positionally. Both passes read the same
// directory in the same order, so any SourceFile mismatch means the listing
// changed between runs.
func merge(rawRows, labelRows []csvRow) ([]Record, error) {
	if len(rawRows) != len(labelRows) {
		return nil, fmt.Errorf("row count mismatch: %d raw vs %d labels", len(rawRows), len(labelRows))
	}
	records := make([]Record, 0, len(rawRows))
	for i, raw := range rawRows {
		label := labelRows[i]
		if raw.sourceFile != label.sourceFile {
			return nil, fmt.Errorf("row %d: source file %q does not match %q", i+1, raw.sourceFile, label.sourceFile)
		}
		fields := make(map[string]exposure.FieldValue, len(raw.values))
		for name, value := range raw.values {
			fields[name] = exposure.FieldValue{Raw: value, Label: label.values[name]}
		}
		records = append(records, Record{SourceFile: raw.sourceFile, Fields: fields})
	}
	return records, nil
}

// ToExposureRecords converts extracted rows into classifier input, parsing the
// capture time from DateTimeOriginal plus SubSecTimeOriginal. Rows without a
// parseable capture time get the zero time and are counted in missing.
func ToExposureRecords(records []Record) (out []exposure.Record, missing int) {
	out = make([]exposure.Record, 0, len(records))
	for _, record := range records {
		ts, ok := ParseTimestamp(record.Fields[FieldDateTimeOriginal].Raw, record.Fields[FieldSubSecTimeOriginal].Raw)
		if !ok {
			missing++
		}
		out = append(out, exposure.Record{
			SourcePath: record.SourceFile,
			Timestamp:  ts,
			Fields:     record.Fields,
		})
	}
	return out, missing
}

// ParseTimestamp parses an EXIF "2006:01:02 15:04:05" value with an optional
// sub-second digit string ("45" means .45s). Trailing timezone suffixes are
// ignored; capture times are compared within one shoot.
func ParseTimestamp(value, subsec string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if len(value) < len(timestampLayout) {
		return time.Time{}, false
	}
	ts, err := time.Parse(timestampLayout, value[:len(timestampLayout)])
	if err != nil {
		return time.Time{}, false
	}
	subsec = strings.TrimSpace(subsec)
	if subsec == "" {
		return ts, true
	}
	var nanos int64
	digits := 0
	for _, r := range subsec {
		if r < '0' || r > '9' {
			break
		}
		if digits < 9 {
			nanos = nanos*10 + int64(r-'0')
			digits++
		}
	}
	for ; digits > 0 && digits < 9; digits++ {
		nanos *= 10
	}
	return ts.Add(time.Duration(nanos)), true
}
