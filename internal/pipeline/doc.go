// Package pipeline prepares a shoot for blending and editing: it scans the
// input directory, classifies frames with EXIF data, groups them into
// ambient/flash brackets and writes (and optionally renders) blend scripts.
package pipeline
