// Package config loads, normalizes, and validates flambient configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FLAMBIENT_API_KEY, which may also come from a .env file. The Config type
// centralizes every knob the CLI and workflow need so classification, blend
// parameters, and remote credentials are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
