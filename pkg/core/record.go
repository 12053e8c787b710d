// Package core provides the domain models and interfaces for the jobs package.
package core

import (
	"time"
)

// JobRecord is the persisted summary of one job, keyed by its handle.
type JobRecord struct {
	Handle      string     `gorm:"primaryKey;size:36"`
	JobID       string     `gorm:"index;size:128"` // Empty for internal jobs
	Type        string     `gorm:"index;size:64"`
	Status      string     `gorm:"index;size:20;not null"`
	Cancelled   bool       `gorm:"default:false"`
	LastError   string     `gorm:"type:text"`
	ProgressCur uint64     `gorm:"default:0"`
	ProgressEnd uint64     `gorm:"default:0"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
	ConcludedAt *time.Time `gorm:"index"`
}

// TransitionRecord stores one state change of a job.
type TransitionRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Handle    string    `gorm:"index;size:36;not null"`
	JobID     string    `gorm:"index;size:128"`
	FromState string    `gorm:"size:20;not null"`
	ToState   string    `gorm:"size:20;not null"`
	At        time.Time `gorm:"index"`
}
