// Package connectors provides implementations of the adapter ports for the
// external systems thingsync talks to. The things package reads the task
// manager's database (and its legacy export format); the notion package
// reads and writes the notes workspace.
package connectors
