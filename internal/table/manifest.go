// Copyright (c) 2025 Xraysync
// Licensed under the MIT License. See LICENSE file in the project root for details.

package table

import (
	"encoding/json"
	"os"

	"xraysync/connector/internal/errors"
)

// Manifest is the sidecar metadata file the platform reads next to an output
// table. It declares the schema, the destination table identity and whether
// the load is incremental (merge by primary key) or a full replace.
type Manifest struct {
	Destination string   `json:"destination"`
	Columns     []string `json:"columns"`
	Incremental bool     `json:"incremental"`
	PrimaryKey  []string `json:"primary_key,omitempty"`
	Delimiter   string   `json:"delimiter"`
	Enclosure   string   `json:"enclosure"`
}

// NewManifest builds a manifest for an output table with the platform's
// default CSV dialect.
func NewManifest(destination string, columns []string) Manifest {
	return Manifest{
		Destination: destination,
		Columns:     columns,
		Delimiter:   ",",
		Enclosure:   `"`,
	}
}

// WriteManifest writes the manifest next to the output CSV as
// "<csvPath>.manifest".
func WriteManifest(csvPath string, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(errors.Unexpected, "encode manifest", err)
	}
	if err := os.WriteFile(csvPath+".manifest", b, 0o644); err != nil {
		return errors.Wrap(errors.IOFailed, "write manifest file", err)
	}
	return nil
}
