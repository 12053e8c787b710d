// Package core provides the fundamental types of the block job framework.
//
// This package contains:
//   - Job Status and Verb enumerations with the transition and verb tables
//   - Event types emitted by the job registry
//   - Error types for usage errors and device I/O failures
//   - JobRecord and TransitionRecord history models with GORM annotations
//   - HistoryStore interface defining the persistence contract
//
// Most users should import the root package github.com/jdziat/simple-block-jobs
// instead of this package directly.
package core
