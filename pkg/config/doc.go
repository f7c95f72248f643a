// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
//
// Each component of the engine declares its own Config struct with
// `env` tags and loads it independently, so components stay deployable
// in isolation.
package config
