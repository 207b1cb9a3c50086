// Package config provides configuration loading and validation for the
// utterance recorder. YAML files are decoded strictly over built-in defaults
// and every section is validated before use.
package config
