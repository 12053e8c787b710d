// Package fanout runs a group of jobs in parallel and waits for all of
// them.
//
// The failure strategy decides how the group is built. FailFast places
// every job in one transaction, so a failing member cancels and aborts the
// rest. CollectAll and Threshold run the jobs independently and judge the
// collected results.
package fanout
