// ABOUTME: Package dbupdater runs the unattended weekly signature refresh
// ABOUTME: Scheduler, status tracking and the per-run update log

/*
Package dbupdater drives signature store refreshes on a weekly schedule.

# Overview

A Scheduler sleeps until the next instant matching its
types.UpdateSchedule (a weekday and an hour, local time), invokes the
Refresher exactly once, writes the run log and recomputes. A disabled
schedule waits without effect until the context ends or SetSchedule
installs a new one:

	sched, err := dbupdater.NewScheduler(dbupdater.SchedulerConfig{
		Refresher: store,
		Schedule:  types.UpdateSchedule{Weekday: 0, Hour: 22},
		LogDir:    logDir,
	})
	if err != nil {
		return err
	}
	go sched.Run(ctx)

	// Later, after the settings file changed:
	sched.SetSchedule(types.UpdateSchedule{Weekday: 3, Hour: 4})

Trigger requests an out-of-band refresh from the running loop; RunNow
performs one on the caller's goroutine.

# Run logs

Each run appends to <log_dir>/updates/<YYYY_MM_DD_HH_MM_SS>.log:

	2026-03-01T22:00:00Z started
	2026-03-01T22:03:12Z finished count=1048576 added=512 removed=3 ...

or, on failure:

	2026-03-01T22:00:04Z error feed virusshare: not found

# Thread Safety

Scheduler and StatusTracker are safe for concurrent use. Only one Run
loop may be active per Scheduler.
*/
package dbupdater
