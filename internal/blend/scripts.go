package blend

import (
	"fmt"
	"path/filepath"

	"flambient/internal/fileutil"
	"flambient/internal/services"
)

// RunnerName is the file name of the master runner script.
const RunnerName = "run_all.sh"

// ScriptSet lists the files written by WriteScripts.
type ScriptSet struct {
	Dir     string
	Scripts []string
	Runner  string
}

// ScriptName returns the per-group script file name.
func ScriptName(groupID int) string {
	return fmt.Sprintf("group_%03d.mgk", groupID)
}

// WriteScripts writes one engine script per recipe plus the runner into dir.
// Each file is written atomically; rerunning overwrites previous scripts.
func WriteScripts(dir string, recipes []Recipe, engine string) (ScriptSet, error) {
	set := ScriptSet{Dir: dir, Scripts: make([]string, 0, len(recipes))}
	for _, recipe := range recipes {
		path := filepath.Join(dir, ScriptName(recipe.GroupID))
		if err := fileutil.WriteFileAtomic(path, Render(recipe), 0o644); err != nil {
			return set, services.Wrap(services.ErrConfiguration, "blend", "write script", path, err)
		}
		set.Scripts = append(set.Scripts, path)
	}
	runner := filepath.Join(dir, RunnerName)
	if err := fileutil.WriteFileAtomic(runner, RenderRunner(recipes, engine), 0o755); err != nil {
		return set, services.Wrap(services.ErrConfiguration, "blend", "write runner", runner, err)
	}
	set.Runner = runner
	return set, nil
}
