package exposure

import (
	"fmt"
	"strings"
)

// Strategy decides which EXIF field splits a shoot into ambient and flash
// frames. The set of strategies is closed: every implementation lives in this
// file and is listed by Strategies.
type Strategy interface {
	// Name is the identifier accepted on the command line and in config.
	Name() string
	// Field is the exiftool tag read for classification.
	Field() string
	// Label is a short human-readable title.
	Label() string
	// Help describes when the strategy is appropriate.
	Help() string
	// DefaultAmbientValue is the raw value that marks an ambient frame when the
	// operator does not supply one. Empty means a value must be supplied.
	DefaultAmbientValue() string

	sealed()
}

// FlashStrategy classifies by the Flash tag. Raw value 16 means "off, did not
// fire", so ambient frames carry 16.
type FlashStrategy struct{}

func (FlashStrategy) Name() string                { return "flash" }
func (FlashStrategy) Field() string               { return "Flash" }
func (FlashStrategy) Label() string               { return "Flash fired" }
func (FlashStrategy) Help() string                { return "Flash tag; ambient frames record the flash as off (raw 16)." }
func (FlashStrategy) DefaultAmbientValue() string { return "16" }
func (FlashStrategy) sealed()                     {}

// ExposureProgramStrategy classifies by the ExposureProgram tag, useful when
// ambient frames are shot in aperture priority and flash frames in manual.
type ExposureProgramStrategy struct{}

func (ExposureProgramStrategy) Name() string  { return "exposure_program" }
func (ExposureProgramStrategy) Field() string { return "ExposureProgram" }
func (ExposureProgramStrategy) Label() string { return "Exposure program" }
func (ExposureProgramStrategy) Help() string {
	return "ExposureProgram tag; ambient frames shot in aperture priority (raw 3)."
}
func (ExposureProgramStrategy) DefaultAmbientValue() string { return "3" }
func (ExposureProgramStrategy) sealed()                     {}

// ExposureModeStrategy classifies by the ExposureMode tag (auto vs manual).
type ExposureModeStrategy struct{}

func (ExposureModeStrategy) Name() string  { return "exposure_mode" }
func (ExposureModeStrategy) Field() string { return "ExposureMode" }
func (ExposureModeStrategy) Label() string { return "Exposure mode" }
func (ExposureModeStrategy) Help() string {
	return "ExposureMode tag; ambient frames use auto exposure (raw 0), flash frames manual."
}
func (ExposureModeStrategy) DefaultAmbientValue() string { return "0" }
func (ExposureModeStrategy) sealed()                     {}

// WhiteBalanceStrategy classifies by the WhiteBalance tag.
type WhiteBalanceStrategy struct{}

func (WhiteBalanceStrategy) Name() string  { return "white_balance" }
func (WhiteBalanceStrategy) Field() string { return "WhiteBalance" }
func (WhiteBalanceStrategy) Label() string { return "White balance" }
func (WhiteBalanceStrategy) Help() string {
	return "WhiteBalance tag; ambient frames use auto white balance (raw 0)."
}
func (WhiteBalanceStrategy) DefaultAmbientValue() string { return "0" }
func (WhiteBalanceStrategy) sealed()                     {}

// ISOStrategy classifies by ISO. Ambient brackets are usually shot at base ISO.
type ISOStrategy struct{}

func (ISOStrategy) Name() string                { return "iso" }
func (ISOStrategy) Field() string               { return "ISO" }
func (ISOStrategy) Label() string               { return "ISO" }
func (ISOStrategy) Help() string                { return "ISO tag; ambient frames shot at a fixed ISO (default 100)." }
func (ISOStrategy) DefaultAmbientValue() string { return "100" }
func (ISOStrategy) sealed()                     {}

// ShutterSpeedStrategy classifies by ExposureTime. There is no sensible
// default, so the ambient value must be given explicitly.
type ShutterSpeedStrategy struct{}

func (ShutterSpeedStrategy) Name() string  { return "shutter_speed" }
func (ShutterSpeedStrategy) Field() string { return "ExposureTime" }
func (ShutterSpeedStrategy) Label() string { return "Shutter speed" }
func (ShutterSpeedStrategy) Help() string {
	return "ExposureTime tag in seconds (raw, e.g. 0.5); requires an explicit ambient value."
}
func (ShutterSpeedStrategy) DefaultAmbientValue() string { return "" }
func (ShutterSpeedStrategy) sealed()                     {}

// CustomStrategy classifies by an arbitrary exiftool tag.
type CustomStrategy struct {
	FieldName string
}

func (CustomStrategy) Name() string                { return "custom" }
func (s CustomStrategy) Field() string             { return s.FieldName }
func (s CustomStrategy) Label() string             { return "Custom (" + s.FieldName + ")" }
func (CustomStrategy) Help() string                { return "Any exiftool tag; requires a field name and an ambient value." }
func (CustomStrategy) DefaultAmbientValue() string { return "" }
func (CustomStrategy) sealed()                     {}

// Strategies lists every built-in strategy in display order. The custom entry
// carries an empty field name.
func Strategies() []Strategy {
	return []Strategy{
		FlashStrategy{},
		ExposureProgramStrategy{},
		ExposureModeStrategy{},
		WhiteBalanceStrategy{},
		ISOStrategy{},
		ShutterSpeedStrategy{},
		CustomStrategy{},
	}
}

// ParseStrategy resolves a strategy name. Names are matched case-insensitively
// and accept dashes in place of underscores. customField is required for the
// custom strategy and ignored otherwise.
func ParseStrategy(name, customField string) (Strategy, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	if normalized == "" {
		return FlashStrategy{}, nil
	}
	for _, candidate := range Strategies() {
		if candidate.Name() != normalized {
			continue
		}
		if _, ok := candidate.(CustomStrategy); ok {
			field := strings.TrimSpace(customField)
			if field == "" {
				return nil, fmt.Errorf("custom strategy requires a field name")
			}
			return CustomStrategy{FieldName: field}, nil
		}
		return candidate, nil
	}
	return nil, fmt.Errorf("unknown strategy %q (valid: %s)", name, strings.Join(strategyNames(), ", "))
}

// ResolveAmbientValue returns the explicit value when set, otherwise the
// strategy default. Strategies without a default require an explicit value.
func ResolveAmbientValue(strategy Strategy, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if value := strategy.DefaultAmbientValue(); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("strategy %s has no default ambient value; supply one explicitly", strategy.Name())
}

func strategyNames() []string {
	all := Strategies()
	names := make([]string, 0, len(all))
	for _, s := range all {
		names = append(names, s.Name())
	}
	return names
}
