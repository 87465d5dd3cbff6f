// Package confloader loads configuration with koanf.
//
// Sources, lowest priority first:
//
//  1. Defaults (a struct marshalled to YAML)
//  2. A YAML file
//  3. Environment variables with the SOCKHTTP_ prefix
//
// A Watcher reports changes to the configuration file so callers can
// reload.
package confloader
