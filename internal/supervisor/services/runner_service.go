// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package services

import (
	"context"
)

// Runner is the lifecycle shared by most Invigilo components.
//
// Run blocks until the context is canceled, returning ctx.Err() on normal
// shutdown or a real error on failure. The supervisor restarts a Runner
// whose Run returns a non-context error.
//
// Satisfied by:
//   - *websocket.Hub.Run
//   - *websocket.Monitor.Run
//   - *session.Registry.Run
//   - *response.Dispatcher.Run
//   - *notify.Queue.Run
//   - *events.Mirror.Run
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a plain function to the Runner interface, the same
// way http.HandlerFunc adapts functions to http.Handler. Used for loops
// that are exposed as functions rather than methods, such as the Badger
// value-log GC ticker.
type RunnerFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f RunnerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// RunnerService wraps a Runner as a supervised service.
//
// The component's Run method already matches suture's Serve contract, so
// this wrapper only delegates and supplies a stable name for supervisor
// log messages.
//
// Example usage:
//
//	hub := ws.NewHub()
//	tree.AddMessagingService(services.NewRunnerService("websocket-hub", hub))
//
//	tree.AddDataService(services.NewRunnerService("badger-gc", services.RunnerFunc(
//	    func(ctx context.Context) error {
//	        return kvstore.RunGC(ctx, db, time.Hour)
//	    })))
type RunnerService struct {
	runner Runner
	name   string
}

// NewRunnerService creates a supervised wrapper around runner. The name
// appears in suture restart and shutdown logs, so keep it short and
// kebab-cased ("session-monitor", "notify-queue").
func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{
		runner: runner,
		name:   name,
	}
}

// Serve implements suture.Service by delegating to the wrapped Run.
func (r *RunnerService) Serve(ctx context.Context) error {
	return r.runner.Run(ctx)
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (r *RunnerService) String() string {
	return r.name
}
