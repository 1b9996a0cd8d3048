// Package hooks holds the process-wide plugin hook spec.md §6 describes: a
// consumer of errors that arrive after a subscription has already
// terminated and has no one left to deliver to. Grounded on the teacher's
// log.go global-var-plus-setter idiom and RxJava's RxJavaPlugins.onError.
package hooks

import "github.com/rsocket/streamx/internal/xlog"

// UndeliverableErrorHandler receives an error that could not be delivered
// to any live consumer.
type UndeliverableErrorHandler func(err error)

var undeliverable UndeliverableErrorHandler = func(err error) {
	xlog.L().Errorw("undeliverable error", "error", err)
}

// SetUndeliverableErrorHandler replaces the process-wide handler for
// errors that arrive after a subscription has already terminated.
func SetUndeliverableErrorHandler(h UndeliverableErrorHandler) {
	if h == nil {
		h = func(err error) {}
	}
	undeliverable = h
}

// OnUndeliverableError reports err through the installed handler. Every
// operator that would otherwise swallow a late error (arriving after
// dispose, after a terminal, or during OnError delivery itself per
// spec.md §7) routes it here instead.
func OnUndeliverableError(err error) {
	if err == nil {
		return
	}
	undeliverable(err)
}
