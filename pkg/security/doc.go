// Package security provides validation, sanitization, and limits for the jobs package.
//
// This package includes:
//   - Well-formedness checks for job IDs and driver type names
//   - Error message sanitization before errors are stored or reported
//   - Clamping functions for recorder concurrency and job speed
//
// Most users should import the root package github.com/jdziat/simple-block-jobs
// which re-exports these functions.
package security
