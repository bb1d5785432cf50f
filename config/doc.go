// Package config loads, normalizes, and validates tracker configuration.
//
// It supplies defaults matching tracker.DefaultOptions, reads TOML files and
// resolves strategy names such as "separate" or "minmax" into the closed
// enums of the tracker package, so that configuration mistakes surface
// before the first frame is processed.
package config
