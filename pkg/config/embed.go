package config

import (
	_ "embed"
)

// defaultConfig holds the built-in defaults, loaded before any user
// configuration so every key has a value.
//
//go:embed default.toml
var defaultConfig []byte

// sampleConfig is the annotated key-value config printed by `backhaul
// genconfig`.
//
//go:embed sample.conf
var sampleConfig []byte

// SampleConfig returns the annotated sample configuration file.
func SampleConfig() string {
	return string(sampleConfig)
}

// rawBytesProvider implements koanf.Provider for embedded byte slices.
type rawBytesProvider struct {
	bytes []byte
}

func (r *rawBytesProvider) ReadBytes() ([]byte, error) {
	return r.bytes, nil
}

func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, nil
}
