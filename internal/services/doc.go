// Package services defines shared utilities consumed by the workflow steps and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, step names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can tell input
//     errors, tool failures, and transient network trouble apart.
//   - A thin Executor abstraction that makes external command execution
//     testable.
//
// Use these helpers when wiring new integration code so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
