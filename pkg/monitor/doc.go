// Package monitor exposes a job registry through the QEMU Machine Protocol.
//
// Monitor implements qmp.Monitor from github.com/digitalocean/go-qemu, so
// tools written against a QEMU socket monitor can drive a Registry
// directly: Run executes job commands such as query-jobs, job-pause or
// block-job-set-speed, and Events streams JOB_STATUS_CHANGE and BLOCK_JOB_*
// events. Internal jobs are invisible through the monitor.
package monitor
