// Package jobs provides background block jobs with a QEMU-style lifecycle
// and a cluster-granular copy engine.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Open devices and build a copy engine
//	src, _ := jobs.OpenFile("disk.img", false, false, 0)
//	dst, _ := jobs.OpenFile("backup.img", true, true, src.Length())
//	state, _ := jobs.NewCopyState(src, dst, 64<<10)
//
//	// Run it as a job
//	reg := jobs.NewRegistry()
//	j, _ := reg.Create("backup0", jobs.NewCopyDriver(state))
//	j.Start()
//
//	// Record history
//	db, _ := gorm.Open(sqlite.Open("jobs.db"), &gorm.Config{})
//	store := jobs.NewGormStore(db)
//	store.Migrate(ctx)
//	go jobs.NewRecorder(reg, store).Start(ctx)
package jobs

import (
	"gorm.io/gorm"

	"github.com/jdziat/simple-block-jobs/pkg/blockcopy"
	"github.com/jdziat/simple-block-jobs/pkg/blockdev"
	"github.com/jdziat/simple-block-jobs/pkg/copyjob"
	"github.com/jdziat/simple-block-jobs/pkg/core"
	"github.com/jdziat/simple-block-jobs/pkg/job"
	"github.com/jdziat/simple-block-jobs/pkg/monitor"
	"github.com/jdziat/simple-block-jobs/pkg/recorder"
	"github.com/jdziat/simple-block-jobs/pkg/schedule"
	"github.com/jdziat/simple-block-jobs/pkg/security"
	"github.com/jdziat/simple-block-jobs/pkg/shres"
	"github.com/jdziat/simple-block-jobs/pkg/storage"
)

// Type aliases
type (
	// Registry owns every live job.
	Registry = job.Registry

	// Job is one background operation.
	Job = job.Job

	// Txn groups jobs that succeed or fail together.
	Txn = job.Txn

	// Driver is the job-specific part of a job.
	Driver = job.Driver

	// DriverFunc adapts a function to Driver.
	DriverFunc = job.DriverFunc

	// Option configures Registry.Create.
	Option = job.Option

	// RegistryOption configures NewRegistry.
	RegistryOption = job.RegistryOption

	// Info is a snapshot of a job.
	Info = job.Info

	// Status represents the lifecycle state of a job.
	Status = core.Status

	// Verb is a user-facing command applied to a job.
	Verb = core.Verb

	// Event is the interface for all registry events.
	Event = core.Event

	// JobStatusChanged is emitted on every status transition.
	JobStatusChanged = core.JobStatusChanged

	// JobReady is emitted when a job enters its ready phase.
	JobReady = core.JobReady

	// JobPending is emitted when a job waits to be finalized.
	JobPending = core.JobPending

	// JobCompleted is emitted when a job that was not cancelled is finalized.
	JobCompleted = core.JobCompleted

	// JobCancelled is emitted when a cancelled job is finalized.
	JobCancelled = core.JobCancelled

	// VerbError reports a verb the job's status does not accept.
	VerbError = core.VerbError

	// IOError reports a failed device read or write.
	IOError = core.IOError

	// Device is a block device a copy reads from or writes to.
	Device = blockdev.Child

	// MemDevice is an in-memory device.
	MemDevice = blockdev.MemDevice

	// FileDevice is a device backed by a file.
	FileDevice = blockdev.FileDevice

	// CopyState is the copy engine between two devices.
	CopyState = blockcopy.State

	// CopyDriver runs a CopyState as a job.
	CopyDriver = copyjob.Driver

	// Limiter bounds memory shared by copy engines.
	Limiter = shres.Limiter

	// GormStore records job history using GORM.
	GormStore = storage.GormStore

	// HistoryStore defines the persistence layer for job history.
	HistoryStore = core.HistoryStore

	// Recorder writes registry events to a HistoryStore.
	Recorder = recorder.Recorder

	// Monitor exposes a registry as a QMP monitor.
	Monitor = monitor.Monitor

	// Schedule defines when a task runs next.
	Schedule = schedule.Schedule
)

// Status constants
const (
	StatusCreated   = core.StatusCreated
	StatusRunning   = core.StatusRunning
	StatusPaused    = core.StatusPaused
	StatusReady     = core.StatusReady
	StatusStandby   = core.StatusStandby
	StatusWaiting   = core.StatusWaiting
	StatusPending   = core.StatusPending
	StatusAborting  = core.StatusAborting
	StatusConcluded = core.StatusConcluded
	StatusNull      = core.StatusNull
)

// Copy modes
const (
	ModeBackup = copyjob.ModeBackup
	ModeMirror = copyjob.ModeMirror
)

// Security limits
const (
	MaxJobIDLength        = security.MaxJobIDLength
	MaxErrorMessageLength = security.MaxErrorMessageLength
	MaxSpeed              = security.MaxSpeed
)

// Error variables
var (
	ErrMissingID      = core.ErrMissingID
	ErrInvalidID      = core.ErrInvalidID
	ErrDuplicateID    = core.ErrDuplicateID
	ErrInternalWithID = core.ErrInternalWithID
	ErrJobNotFound    = core.ErrJobNotFound
	ErrAlreadyPaused  = core.ErrAlreadyPaused
	ErrNotPaused      = core.ErrNotPaused
	ErrCannotComplete = core.ErrCannotComplete
	ErrInvalidSpeed   = core.ErrInvalidSpeed
	ErrCancelled      = core.ErrCancelled
)

// NewRegistry creates an empty job registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	return job.NewRegistry(opts...)
}

// Job creation options.
var (
	InTxn          = job.InTxn
	Internal       = job.Internal
	ManualFinalize = job.ManualFinalize
	ManualDismiss  = job.ManualDismiss
	OnComplete     = job.OnComplete
	WithType       = job.WithType
)

// NewMemDevice creates an in-memory device of size bytes.
func NewMemDevice(name string, size int64, opts ...blockdev.MemOption) *MemDevice {
	return blockdev.NewMemDevice(name, size, opts...)
}

// OpenFile opens a file or block special file as a device.
func OpenFile(path string, writable, create bool, size int64) (*FileDevice, error) {
	return blockdev.OpenFile(path, writable, create, size)
}

// NewCopyState creates a copy engine from source to target.
func NewCopyState(source, target Device, clusterSize int64, opts ...blockcopy.Option) (*CopyState, error) {
	return blockcopy.New(source, target, clusterSize, opts...)
}

// NewCopyDriver creates a job driver for state.
func NewCopyDriver(state *CopyState, opts ...copyjob.Option) *CopyDriver {
	return copyjob.New(state, opts...)
}

// Copy driver options.
var (
	WithMode            = copyjob.WithMode
	WithSkipUnallocated = copyjob.WithSkipUnallocated
	Incremental         = copyjob.Incremental
)

// NewLimiter creates a memory limiter shared between copy engines.
func NewLimiter(total int64) *Limiter {
	return shres.New(total)
}

// NewGormStore creates a GORM-backed history store.
func NewGormStore(db *gorm.DB) *GormStore {
	return storage.NewGormStore(db)
}

// NewRecorder creates a recorder of reg's events into store.
func NewRecorder(reg *Registry, store HistoryStore, opts ...recorder.Option) *Recorder {
	return recorder.New(reg, store, opts...)
}

// NewMonitor creates a QMP monitor for reg.
func NewMonitor(reg *Registry, opts ...monitor.Option) *Monitor {
	return monitor.New(reg, opts...)
}

// Schedules
var (
	Every     = schedule.Every
	Daily     = schedule.Daily
	Weekly    = schedule.Weekly
	Cron      = schedule.Cron
	ParseCron = schedule.ParseCron
)
