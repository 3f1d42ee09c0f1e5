// Package panics centralizes the node's "this is unrecoverable" exit path
// (spec §7's consistency/checkpoint-failure fatal errors: abort after
// removing the persisted checkpoint directory, unless overridden). Adapted
// from kaspad's util/panics/panics.go, which wraps its own internal
// logs.Logger; here it wraps logs.Logger from package logs instead.
package panics

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/omnilayer/omnicore/logs"
)

// HandlePanic recovers a panic, logs it along with both the recovering and
// (if given) the originating goroutine's stack trace, then exits.
func HandlePanic(log logs.Logger, goroutineStackTrace []byte) {
	err := recover()
	if err == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		log.Criticalf("Fatal error: %+v", err)
		if goroutineStackTrace != nil {
			log.Criticalf("Goroutine stack trace: %s", goroutineStackTrace)
		}
		log.Criticalf("Stack trace: %s", debug.Stack())
		close(done)
	}()

	const timeout = 5 * time.Second
	select {
	case <-time.After(timeout):
		fmt.Fprintln(os.Stderr, "Couldn't handle a fatal error. Exiting...")
	case <-done:
	}
	log.Criticalf("Exiting")
	os.Exit(1)
}

// GoroutineWrapperFunc returns a launcher that runs f in a new goroutine,
// recovering and logging any panic instead of crashing the whole process.
func GoroutineWrapperFunc(log logs.Logger) func(func()) {
	return func(f func()) {
		stackTrace := debug.Stack()
		go func() {
			defer HandlePanic(log, stackTrace)
			f()
		}()
	}
}

// AfterFuncWrapperFunc is the time.AfterFunc analogue of GoroutineWrapperFunc.
func AfterFuncWrapperFunc(log logs.Logger) func(d time.Duration, f func()) *time.Timer {
	return func(d time.Duration, f func()) *time.Timer {
		stackTrace := debug.Stack()
		return time.AfterFunc(d, func() {
			defer HandlePanic(log, stackTrace)
			f()
		})
	}
}

// Exit logs reason as critical and terminates the process. Callers that
// need to remove the persisted checkpoint directory before exiting (spec
// §7's fatal consistency-error path) must do so before calling Exit.
func Exit(log logs.Logger, reason string) {
	done := make(chan struct{})
	go func() {
		log.Criticalf("Exiting: %s", reason)
		close(done)
	}()

	const timeout = 5 * time.Second
	select {
	case <-time.After(timeout):
		fmt.Fprintln(os.Stderr, "Couldn't exit gracefully.")
	case <-done:
	}
	os.Exit(1)
}
