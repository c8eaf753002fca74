// Package config loads and validates Halcyon Core configuration.
//
// Configuration is read from a YAML file, layered over hardcoded defaults,
// and finally overridden by HALCYON_* environment variables. Validation
// runs after all three layers so a bad value is caught regardless of where
// it came from.
//
// The approval section is the interesting one: it carries the request
// timeout, the reasoning-call budget, the deterministic rule thresholds,
// and the safety policy applied when no decision arrives in time.
package config
