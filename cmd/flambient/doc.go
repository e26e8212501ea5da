// Package main hosts the flambient CLI entrypoint and command graph.
//
// The Cobra command tree covers local blending (classify, group, write and
// optionally render blend scripts), the resumable remote editing workflow,
// and small utilities for profiles, strategies, and configuration. Config
// resolution, logger setup, and preflight checks are centralized in the
// command context so subcommands only parse flags and print results.
package main
