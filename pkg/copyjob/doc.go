// Package copyjob provides a job driver that copies one block device to
// another with a blockcopy.State.
//
// In ModeBackup the job finishes after the copy bitmap has been drained
// once. In ModeMirror it enters the ready phase after the first pass and
// keeps copying newly dirtied regions until it is completed or cancelled.
package copyjob
