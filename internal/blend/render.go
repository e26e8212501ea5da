package blend

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const scriptHeader = "#!/usr/bin/env magick-script\n"

// Render produces an ImageMagick script for the recipe. Every instruction is
// one line that leaves the image list empty, with intermediates kept in mpr:
// buffers. Output is byte-identical for identical recipes.
func Render(recipe Recipe) []byte {
	var buf bytes.Buffer
	buf.WriteString(scriptHeader)
	fmt.Fprintf(&buf, "# group %03d\n", recipe.GroupID)
	for _, inst := range recipe.Instructions {
		switch v := inst.(type) {
		case Load:
			fmt.Fprintf(&buf, "%s -write mpr:%s +delete\n", quoteArg(v.Path), v.Into)
		case Composite:
			fmt.Fprintf(&buf, "mpr:%s mpr:%s -compose %s -composite -write mpr:%s +delete\n", v.Dst, v.Src, v.Op, v.Into)
		case LevelMask:
			fmt.Fprintf(&buf, "mpr:%s -channel B -separate +channel -level %s%%,%s%%,%s -write mpr:%s +delete\n",
				v.Source, formatNumber(v.Low), formatNumber(v.High), formatNumber(v.Gamma), v.Into)
		case Write:
			quality := ""
			if v.Quality > 0 {
				quality = " -quality " + strconv.Itoa(v.Quality)
			}
			fmt.Fprintf(&buf, "mpr:%s%s -write %s +delete\n", v.Buffer, quality, quoteArg(v.Path))
		case Skip:
			fmt.Fprintf(&buf, "# skipped: %s\n", v.Reason)
		}
	}
	return buf.Bytes()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// quoteArg wraps a path in single quotes for the script tokenizer.
func quoteArg(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `\'`) + "'"
}

// shellQuote quotes a value for POSIX sh.
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// RenderRunner produces a bash script that runs the engine once per group,
// reports each group's outcome, keeps going past failures, and exits non-zero
// when any group failed. Script paths are relative to the runner's directory.
func RenderRunner(recipes []Recipe, engine string) []byte {
	if strings.TrimSpace(engine) == "" {
		engine = "magick"
	}
	var buf bytes.Buffer
	buf.WriteString("#!/usr/bin/env bash\n")
	buf.WriteString("# Runs every blend script in this directory and reports per-group results.\n")
	buf.WriteString("set -u\n")
	buf.WriteString("cd \"$(dirname \"$0\")\" || exit 1\n\n")
	fmt.Fprintf(&buf, "engine=\"${FLAMBIENT_ENGINE:-%s}\"\n", strings.ReplaceAll(engine, `"`, `\"`))
	buf.WriteString("succeeded=0\nfailed=0\nskipped=0\n\n")
	buf.WriteString("run_group() {\n")
	buf.WriteString("  local id=\"$1\" script=\"$2\"\n")
	buf.WriteString("  if \"$engine\" -script \"$script\"; then\n")
	buf.WriteString("    echo \"group $id: ok\"\n")
	buf.WriteString("    succeeded=$((succeeded + 1))\n")
	buf.WriteString("  else\n")
	buf.WriteString("    echo \"group $id: FAILED\" >&2\n")
	buf.WriteString("    failed=$((failed + 1))\n")
	buf.WriteString("  fi\n")
	buf.WriteString("}\n\n")
	for _, recipe := range recipes {
		id := fmt.Sprintf("%03d", recipe.GroupID)
		if recipe.Skipped() {
			fmt.Fprintf(&buf, "echo %s\n", shellQuote("group "+id+": skipped ("+recipe.SkipReason()+")"))
			buf.WriteString("skipped=$((skipped + 1))\n")
			continue
		}
		fmt.Fprintf(&buf, "run_group %s %s\n", id, shellQuote(ScriptName(recipe.GroupID)))
	}
	buf.WriteString("\necho \"summary: $succeeded succeeded, $failed failed, $skipped skipped\"\n")
	buf.WriteString("[ \"$failed\" -eq 0 ]\n")
	return buf.Bytes()
}
