package exif_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"flambient/internal/exif"
	"flambient/internal/services"
)

type stubExecutor struct {
	raw      string
	labels   string
	err      error
	calls    [][]string
	failCall int
}

func (s *stubExecutor) Output(_ context.Context, binary string, args ...string) ([]byte, error) {
	s.calls = append(s.calls, append([]string{binary}, args...))
	if s.err != nil && len(s.calls) == s.failCall {
		return nil, s.err
	}
	if slices.Contains(args, "-n") {
		return []byte(s.raw), nil
	}
	return []byte(s.labels), nil
}

const rawCSV = `SourceFile,DateTimeOriginal,SubSecTimeOriginal,Flash
/shoot/a.jpg,2024:05:01 10:00:00,10,16
/shoot/b.jpg,2024:05:01 10:00:01,,0
`

const labelCSV = `SourceFile,DateTimeOriginal,SubSecTimeOriginal,Flash
/shoot/a.jpg,2024:05:01 10:00:00,10,"Off, Did not fire"
/shoot/b.jpg,2024:05:01 10:00:01,,No Flash
`

func TestExtractMergesRawAndLabels(t *testing.T) {
	stub := &stubExecutor{raw: rawCSV, labels: labelCSV}
	extractor := exif.New("exiftool", exif.WithExecutor(stub))

	records, err := extractor.Extract(context.Background(), "/shoot", []string{"Flash", "DateTimeOriginal"})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	flash := records[0].Fields["Flash"]
	if flash.Raw != "16" || flash.Label != "Off, Did not fire" {
		t.Fatalf("unexpected flash value: %+v", flash)
	}
	if records[1].SourceFile != "/shoot/b.jpg" {
		t.Fatalf("unexpected source file: %q", records[1].SourceFile)
	}

	if len(stub.calls) != 2 {
		t.Fatalf("expected two exiftool runs, got %d", len(stub.calls))
	}
	first := strings.Join(stub.calls[0], " ")
	for _, fragment := range []string{"exiftool -csv", "-n", "-DateTimeOriginal", "-SubSecTimeOriginal", "-Flash", "-ext jpg", "/shoot"} {
		if !strings.Contains(first, fragment) {
			t.Fatalf("expected %q in %q", fragment, first)
		}
	}
	if strings.Count(first, "-DateTimeOriginal") != 1 {
		t.Fatalf("expected DateTimeOriginal requested once: %q", first)
	}
	if slices.Contains(stub.calls[1], "-n") {
		t.Fatalf("label pass must not use -n: %v", stub.calls[1])
	}
}

func TestExtractWithExtensionsLimitsFileTypes(t *testing.T) {
	stub := &stubExecutor{raw: rawCSV, labels: labelCSV}
	extractor := exif.New("exiftool", exif.WithExecutor(stub), exif.WithExtensions("dng"))

	if _, err := extractor.Extract(context.Background(), "/shoot", []string{"Flash"}); err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	for _, call := range stub.calls {
		args := strings.Join(call, " ")
		if !strings.Contains(args, "-ext dng") {
			t.Fatalf("expected -ext dng in %q", args)
		}
		if strings.Count(args, "-ext ") != 1 {
			t.Fatalf("expected a single -ext filter in %q", args)
		}
	}
}

func TestExtractRejectsSourceFileMismatch(t *testing.T) {
	mismatched := strings.Replace(labelCSV, "/shoot/b.jpg", "/shoot/c.jpg", 1)
	stub := &stubExecutor{raw: rawCSV, labels: mismatched}
	_, err := exif.New("exiftool", exif.WithExecutor(stub)).Extract(context.Background(), "/shoot", []string{"Flash"})
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
}

func TestExtractRejectsRowCountMismatch(t *testing.T) {
	short := "SourceFile,Flash\n/shoot/a.jpg,Off\n"
	stub := &stubExecutor{raw: rawCSV, labels: short}
	if _, err := exif.New("exiftool", exif.WithExecutor(stub)).Extract(context.Background(), "/shoot", nil); err == nil {
		t.Fatal("expected row count mismatch error")
	}
}

func TestExtractToolFailure(t *testing.T) {
	stub := &stubExecutor{raw: rawCSV, labels: labelCSV, err: errors.New("exit status 1"), failCall: 2}
	_, err := exif.New("exiftool", exif.WithExecutor(stub)).Extract(context.Background(), "/shoot", []string{"Flash"})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestExtractEmptyOutput(t *testing.T) {
	stub := &stubExecutor{}
	records, err := exif.New("exiftool", exif.WithExecutor(stub)).Extract(context.Background(), "/shoot", []string{"Flash"})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestToExposureRecordsParsesCaptureTime(t *testing.T) {
	stub := &stubExecutor{raw: rawCSV, labels: labelCSV}
	records, err := exif.New("exiftool", exif.WithExecutor(stub)).Extract(context.Background(), "/shoot", []string{"Flash"})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	converted, missing := exif.ToExposureRecords(records)
	if missing != 0 {
		t.Fatalf("expected every record to have a timestamp, missing=%d", missing)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 100_000_000, time.UTC)
	if !converted[0].Timestamp.Equal(want) {
		t.Fatalf("timestamp = %s, want %s", converted[0].Timestamp, want)
	}
	if converted[0].SourcePath != "/shoot/a.jpg" {
		t.Fatalf("unexpected path %q", converted[0].SourcePath)
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		value  string
		subsec string
		want   time.Time
		ok     bool
	}{
		{"2024:05:01 10:00:00", "", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"2024:05:01 10:00:00", "45", time.Date(2024, 5, 1, 10, 0, 0, 450_000_000, time.UTC), true},
		{"2024:05:01 10:00:00", "007", time.Date(2024, 5, 1, 10, 0, 0, 7_000_000, time.UTC), true},
		{"2024:05:01 10:00:00+02:00", "", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"", "", time.Time{}, false},
		{"0000:00:00 00:00:00", "", time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := exif.ParseTimestamp(tc.value, tc.subsec)
		if ok != tc.ok || !got.Equal(tc.want) {
			t.Fatalf("ParseTimestamp(%q, %q) = %s, %v; want %s, %v", tc.value, tc.subsec, got, ok, tc.want, tc.ok)
		}
	}
}
