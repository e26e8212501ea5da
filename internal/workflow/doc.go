// Package workflow drives a remote edit job through its four steps: upload,
// process, export and download.
//
// Every step checkpoints to the job store. When a step fails the job is
// marked failed with the step it stopped in, and Resume later restarts at
// that step and falls through the rest. A per-job lock file keeps two
// processes from writing the same job. Progress is published to an Observer.
package workflow
