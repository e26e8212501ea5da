// Package preflight provides readiness checks for the tools, directories,
// and remote API that flambient commands depend on.
//
// Commands call RunAll with the options that match their work: blending
// needs exiftool and a readable input directory, rendering adds ImageMagick,
// and editing adds the state directory and the editing API. A failing check
// stops the command before any job is created.
package preflight
