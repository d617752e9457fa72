// Package config loads process configuration from AUTHCORE_* environment
// variables, with sane defaults for local development. Every section is
// validated once at startup; nothing re-reads the environment afterwards.
package config
