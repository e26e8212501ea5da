// Package remote talks to the photo-editing service: project creation,
// signed-URL uploads and downloads, edit and export submission, and status
// polling.
//
// API calls authenticate with the x-api-key header and unwrap the service's
// data envelope. Transient failures are retried with exponential backoff
// that honors Retry-After; other client errors return immediately.
package remote
