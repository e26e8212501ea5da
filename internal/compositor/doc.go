// Package compositor runs written blend scripts through ImageMagick, one group
// at a time, and records a per-group result so a single bad group never
// aborts the batch.
package compositor
