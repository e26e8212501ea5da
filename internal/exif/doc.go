// Package exif extracts classification fields from image files with exiftool.
//
// Each extraction runs exiftool twice over the same directory: once with -n
// for raw numeric values and once for human-readable labels. The CSV outputs
// are merged positionally and cross-checked by SourceFile.
package exif
