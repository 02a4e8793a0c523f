// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/nqminds/EDGESec/internal/errors"
)

// defaults fills in the fields a config file is allowed to omit.
func defaults() Config {
	return Config{
		SchemaVersion: CurrentSchemaVersion,
		PIDFile:       "/var/run/edgesecd.pid",
		LogFile:       "/var/log/edgesecd.log",
		CommandSocket: "/var/run/edgesecd/command.sock",
		StoreDB:       "/var/lib/edgesecd/store.db",
		Capture: CaptureConfig{
			Snaplen: 262144,
		},
	}
}

// LoadFile parses the HCL config at path, applying defaults for anything
// the file leaves unset, then validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, errors.Wrapf(err, errors.KindValidation, "config: decode %s", path)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
