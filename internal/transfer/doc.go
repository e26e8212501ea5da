// Package transfer runs per-file uploads and downloads through a bounded
// worker pool while keeping exact per-file success and failure bookkeeping.
package transfer
