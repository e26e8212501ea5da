// Package deps resolves the external command-line tools flambient invokes.
package deps
