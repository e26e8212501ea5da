// Package jobs persists remote edit jobs in SQLite.
//
// A Job records everything needed to resume an interrupted edit: the frozen
// input manifest, which files have been uploaded and downloaded, the remote
// project id and the step a failed job stopped in. Status changes follow
// CanTransition and terminal jobs are never modified.
package jobs
