package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"flambient/internal/services"
)

// imageMIMEs are the sniffed types accepted as input images.
var imageMIMEs = []string{"image/jpeg", "image/png", "image/tiff"}

// rawExtensions are camera RAW formats that sniff as generic TIFF or binary.
var rawExtensions = []string{".dng", ".cr2", ".cr3", ".nef", ".arw", ".raf", ".orf", ".rw2"}

// ScanManifest lists the image files directly inside dir, sorted by name.
// Files are accepted when their content sniffs as JPEG, PNG or TIFF, or when
// they carry a known RAW extension. Hidden files are ignored. An empty result
// is a validation error.
func ScanManifest(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "scan", fmt.Sprintf("read input dir %s", dir), err)
	}

	var manifest []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !entry.Type().IsRegular() {
			continue
		}
		ok, err := isImage(filepath.Join(dir, name))
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "pipeline", "scan", "inspect "+name, err)
		}
		if ok {
			manifest = append(manifest, name)
		}
	}
	if len(manifest) == 0 {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "scan", fmt.Sprintf("no images found in %s", dir), nil)
	}
	slices.Sort(manifest)
	return manifest, nil
}

func isImage(path string) (bool, error) {
	if slices.Contains(rawExtensions, strings.ToLower(filepath.Ext(path))) {
		return true, nil
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return false, err
	}
	for _, accepted := range imageMIMEs {
		if mtype.Is(accepted) {
			return true, nil
		}
	}
	return false, nil
}
