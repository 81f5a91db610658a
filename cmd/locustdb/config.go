package main

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/andreheringer/LocustDB/innerdb"
)

// fileConfig is the optional --config YAML overlay on top of flag
// defaults; sigs.k8s.io/yaml goes through its YAML-to-JSON conversion
// before unmarshaling into a plain Go struct.
type fileConfig struct {
	Threads            *int   `json:"threads,omitempty"`
	BatchSize          *int   `json:"batchSize,omitempty"`
	ReadThreads         *int   `json:"readThreads,omitempty"`
	MemSizeLimitTables *int64 `json:"memSizeLimitTables,omitempty"`
	DataDir            *string `json:"dataDir,omitempty"`
	ListenAddr         *string `json:"listenAddr,omitempty"`
}

// loadConfigOverlay reads path (if non-empty) and applies any fields it
// sets on top of opts/dataDir/listenAddr, leaving flag-set values
// untouched where the file is silent.
func loadConfigOverlay(path string, opts *innerdb.Options, dataDir, listenAddr *string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if fc.Threads != nil {
		opts.Threads = *fc.Threads
	}
	if fc.BatchSize != nil {
		opts.BatchSize = *fc.BatchSize
	}
	if fc.ReadThreads != nil {
		opts.ReadThreads = *fc.ReadThreads
	}
	if fc.MemSizeLimitTables != nil {
		opts.MemSizeLimitTables = *fc.MemSizeLimitTables
	}
	if fc.DataDir != nil {
		*dataDir = *fc.DataDir
	}
	if fc.ListenAddr != nil {
		*listenAddr = *fc.ListenAddr
	}
	return nil
}
