// Package config loads bookshelf settings from the environment.
//
// An optional .env file is read first; variables already set in the process
// environment win over it.
package config
