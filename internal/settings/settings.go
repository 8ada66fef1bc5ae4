// Package settings loads and saves ir.HardwareSettings as JSON, using
// os.ReadFile/os.WriteFile plus encoding/json, with errors wrapped for
// context.
package settings

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/c00lrain/plaidml/internal/ir"
)

// Load reads a HardwareSettings from a JSON file.
func Load(filename string) (ir.HardwareSettings, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return ir.HardwareSettings{}, errors.Wrap(err, "reading hardware settings file")
	}
	var hs ir.HardwareSettings
	if err := json.Unmarshal(data, &hs); err != nil {
		return ir.HardwareSettings{}, errors.Wrap(err, "parsing hardware settings JSON")
	}
	return hs, nil
}

// Save writes a HardwareSettings to a JSON file.
func Save(filename string, hs ir.HardwareSettings) error {
	data, err := json.MarshalIndent(hs, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling hardware settings")
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "writing hardware settings file")
	}
	return nil
}

// Default returns a reasonable baseline HardwareSettings for tests and
// the CLI's --settings-less fast path.
func Default() ir.HardwareSettings {
	return ir.HardwareSettings{
		Name:                "generic",
		VecSize:             4,
		FastMemoryCapacity:  1 << 20,
		SlowMemoryBandwidth: 1 << 30,
		NativeGranularity:   16,
		TileTrials:          3,
	}
}
