// Package job implements the background job framework: the job state
// machine, transactions of jobs that succeed or fail together, and the
// registry that owns every live job.
//
// A job is created with Registry.Create around a Driver and begins in the
// created state with one pause reference held. Start launches the driver's
// Run method on its own goroutine. Run cooperates with the framework by
// calling PausePoint, Yield or Sleep, where the job may be paused, resumed
// or cancelled.
//
// When Run returns, the job's transaction decides the outcome. A failure in
// any member force-cancels and aborts every member. When all members
// succeed they move to pending together and are finalized, automatically or
// by an explicit Finalize call, and finally concluded and dismissed.
//
// Two locks guard the framework. The registry's job mutex protects job
// fields for short sections only. Completion, finalization and every
// user-facing verb additionally run under the registry's control-plane
// lock; synchronous waits such as CancelSync release it while waiting.
// Driver hooks are called with the control-plane lock held and must not
// call verbs themselves; they may call Enter and the progress methods.
package job
