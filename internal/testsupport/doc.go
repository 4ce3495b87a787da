// Package testsupport provides shared fixtures for package tests: throwaway
// configs, an in-process Redis, and a SQLite-backed catalog.
package testsupport
