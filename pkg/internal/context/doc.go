// Package context provides internal context helpers for job execution.
//
// This package is internal and should not be imported directly.
// It carries the running job through the context passed to a driver's Run
// method so that code deep in a copy loop can reach it.
package context
