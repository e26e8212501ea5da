package blend

import (
	"fmt"
	"path/filepath"

	"flambient/internal/exposure"
)

// Named intermediate buffers shared by every recipe.
const (
	BufAmbient    = "ambient"
	BufFlash      = "flash"
	BufMask       = "mask"
	BufMasked     = "masked"
	BufLuminosity = "luminosity"
	BufOver       = "over"
	BufResult     = "result"
	bufNext       = "next"
)

// Params controls mask shaping and output naming. OutputDir, when set, is
// prepended to the generated output file name.
type Params struct {
	LevelLow     float64
	LevelHigh    float64
	Gamma        float64
	OutputPrefix string
	OutputDir    string
	Quality      int
}

// DefaultParams returns the standard blend settings.
func DefaultParams() Params {
	return Params{
		LevelLow:     25,
		LevelHigh:    75,
		Gamma:        1,
		OutputPrefix: "blend",
		Quality:      95,
	}
}

// CompositeOp names a compositing operator.
type CompositeOp string

const (
	OpLighten     CompositeOp = "Lighten"
	OpCopyOpacity CompositeOp = "CopyOpacity"
	OpLuminize    CompositeOp = "Luminize"
	OpOver        CompositeOp = "Over"
	OpColorize    CompositeOp = "Colorize"
)

// Instruction is one step of a recipe. The set is closed: Load, Composite,
// LevelMask, Write, and Skip.
type Instruction interface {
	instruction()
}

// Load reads an image file into a buffer.
type Load struct {
	Path string
	Into string
}

// Composite lays Src over Dst with Op and stores the result in Into.
type Composite struct {
	Op   CompositeOp
	Dst  string
	Src  string
	Into string
}

// LevelMask extracts the blue channel of Source, level-stretches it between
// Low and High percent with Gamma, and stores it in Into.
type LevelMask struct {
	Source string
	Low    float64
	High   float64
	Gamma  float64
	Into   string
}

// Write saves a buffer as a JPEG.
type Write struct {
	Buffer  string
	Path    string
	Quality int
}

// Skip documents why a group produced no output.
type Skip struct {
	Reason string
}

func (Load) instruction()      {}
func (Composite) instruction() {}
func (LevelMask) instruction() {}
func (Write) instruction()     {}
func (Skip) instruction()      {}

// Recipe is the full instruction list for one group.
type Recipe struct {
	GroupID      int
	Instructions []Instruction
	OutputPath   string
}

// Skipped reports whether the recipe only documents a skip.
func (r Recipe) Skipped() bool {
	if len(r.Instructions) != 1 {
		return false
	}
	_, ok := r.Instructions[0].(Skip)
	return ok
}

// SkipReason returns the documented skip reason, if any.
func (r Recipe) SkipReason() string {
	if !r.Skipped() {
		return ""
	}
	return r.Instructions[0].(Skip).Reason
}

// OutputName returns the file name a group's blend is written to.
func OutputName(prefix string, sequence int) string {
	return fmt.Sprintf("%s_%03d.jpg", prefix, sequence)
}

// Synthesize builds the recipe for one group. It is pure: the same group and
// params always produce an identical recipe. Groups missing ambient or flash
// frames yield a single Skip instruction and no output path.
func Synthesize(group exposure.Group, params Params) Recipe {
	recipe := Recipe{GroupID: group.Sequence}
	switch {
	case len(group.Ambient) == 0 && len(group.Flash) == 0:
		recipe.Instructions = []Instruction{Skip{Reason: "group has no frames"}}
		return recipe
	case len(group.Ambient) == 0:
		recipe.Instructions = []Instruction{Skip{Reason: fmt.Sprintf("no ambient frames (%d flash)", len(group.Flash))}}
		return recipe
	case len(group.Flash) == 0:
		recipe.Instructions = []Instruction{Skip{Reason: fmt.Sprintf("no flash frames (%d ambient)", len(group.Ambient))}}
		return recipe
	}

	output := OutputName(params.OutputPrefix, group.Sequence)
	if params.OutputDir != "" {
		output = filepath.Join(params.OutputDir, output)
	}

	steps := make([]Instruction, 0, 2*(len(group.Ambient)+len(group.Flash))+6)
	steps = lightenFold(steps, group.Ambient, BufAmbient)
	steps = lightenFold(steps, group.Flash, BufFlash)
	steps = append(steps,
		LevelMask{Source: BufAmbient, Low: params.LevelLow, High: params.LevelHigh, Gamma: params.Gamma, Into: BufMask},
		Composite{Op: OpCopyOpacity, Dst: BufFlash, Src: BufMask, Into: BufMasked},
		Composite{Op: OpLuminize, Dst: BufAmbient, Src: BufFlash, Into: BufLuminosity},
		Composite{Op: OpOver, Dst: BufMasked, Src: BufLuminosity, Into: BufOver},
		Composite{Op: OpColorize, Dst: BufOver, Src: BufFlash, Into: BufResult},
		Write{Buffer: BufResult, Path: output, Quality: params.Quality},
	)
	recipe.Instructions = steps
	recipe.OutputPath = output
	return recipe
}

// SynthesizeAll builds a recipe for every group in order.
func SynthesizeAll(groups []exposure.Group, params Params) []Recipe {
	recipes := make([]Recipe, 0, len(groups))
	for _, group := range groups {
		recipes = append(recipes, Synthesize(group, params))
	}
	return recipes
}

// lightenFold loads files left to right, keeping the per-channel maximum in buf.
func lightenFold(steps []Instruction, files []string, buf string) []Instruction {
	steps = append(steps, Load{Path: files[0], Into: buf})
	for _, file := range files[1:] {
		steps = append(steps,
			Load{Path: file, Into: bufNext},
			Composite{Op: OpLighten, Dst: buf, Src: bufNext, Into: buf},
		)
	}
	return steps
}
