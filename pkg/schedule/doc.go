// Package schedule runs recurring block jobs.
//
// This package includes:
//   - Schedule interface for defining when a task runs next
//   - Every() for fixed-interval schedules
//   - Daily() for daily schedules at a specific time
//   - Weekly() for weekly schedules on a specific day and time
//   - Cron() and ParseCron() for cron expression-based schedules
//   - Scheduler, a loop that fires named tasks when their schedule is due
package schedule
