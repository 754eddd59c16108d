// Package testutil provides common asserts for STRUBS tests, ported from
// the teacher's devtools/tutils/tassert package.
package testutil

import (
	"runtime"
	"runtime/debug"
	"sync"
	"testing"
)

var (
	fatalities = make(map[string]struct{})
	mu         sync.Mutex
)

// CheckFatal fails the test immediately if err is non-nil.
func CheckFatal(tb testing.TB, err error) {
	if err == nil {
		return
	}
	mu.Lock()
	if _, ok := fatalities[tb.Name()]; ok {
		mu.Unlock()
		runtime.Goexit()
	} else {
		fatalities[tb.Name()] = struct{}{}
		mu.Unlock()
		debug.PrintStack()
		tb.Fatal(err.Error())
	}
}

// CheckError records err as a test failure without stopping the test.
func CheckError(tb testing.TB, err error) {
	if err != nil {
		debug.PrintStack()
		tb.Error(err.Error())
	}
}

// Fatalf fails the test immediately if cond is false.
func Fatalf(tb testing.TB, cond bool, msg string, args ...interface{}) {
	if !cond {
		debug.PrintStack()
		tb.Fatalf(msg, args...)
	}
}

// Errorf records a failure if cond is false, without stopping the test.
func Errorf(tb testing.TB, cond bool, msg string, args ...interface{}) {
	if !cond {
		debug.PrintStack()
		tb.Errorf(msg, args...)
	}
}
