// Package blend turns exposure groups into compositing recipes.
//
// A recipe is a fixed five-stage pipeline: lighten-merge the ambient frames,
// lighten-merge the flash frames, build a luminosity mask from the ambient
// blue channel, chain the flash through that mask with luminosity, over, and
// colorize composites, then write the JPEG. Synthesize is pure. Render and
// RenderRunner serialize recipes as ImageMagick scripts, and WriteScripts is
// the only function that touches the filesystem.
package blend
