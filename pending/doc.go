// Package pending models the asynchronous outcomes produced by job work.
//
// A Result is anything that eventually completes with either nil (success) or an
// error (failure) and can notify a callback when that happens. Future is the
// default implementation; Join combines a collection of results into a single
// joint result which fails as soon as any member fails and succeeds once every
// member has succeeded. Nil members are treated as already succeeded.
//
// Callbacks registered with OnComplete run on whichever goroutine completes the
// result, or synchronously on the caller's goroutine when the result has already
// completed. Callers must not assume a particular goroutine.
package pending
