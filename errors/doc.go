// Package errors provides structured error types for the gdal-async bridge.
//
// Errors are categorized by Phase (which layer detected the failure) and Kind
// (what went wrong). The Error type carries the resource and operation that
// failed, a human-readable detail and the underlying cause.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseStream, errors.KindOverflow).
//		Resource("band#7").
//		Op("write").
//		Detail("%d elements past the window", n).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Destroyed(errors.PhaseRegistry, "dataset#3", "flush")
//	err := errors.NativeFailure("rasterio", cause)
//
// Matching is by Kind, and additionally by Phase when the target sets one:
//
//	if errors.Is(err, errors.ErrDestroyed) { ... }
//
// The taxonomy mirrors the bridge's failure classes: already-destroyed
// (detected synchronously, never queued), native-call failure (the library's
// message is kept verbatim as Cause), argument or contract violation, and
// torn-down-while-pending. None of them is retried by the bridge.
package errors
