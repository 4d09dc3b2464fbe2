// Package gdalasync binds a stateful, non-reentrant native geospatial library to
// Go's garbage-collected runtime.
//
// The geospatial algorithms live entirely inside the native library. This module
// is the bridge: it decides which wrapper stands for which native object, when a
// native object may be destroyed, and which goroutine may touch it.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	gdalasync/           Root package with Window, Layout and the Number constraint
//	├── resource/        Handle registry and ownership graph (GC protocol)
//	├── group/           Per-dataset serialization domain with a FIFO task queue
//	├── dispatch/        Bounded worker pool, Future, completion loop
//	├── stream/          Block-streaming read, write and multiplex streams
//	├── gdal/            Typed wrappers: Runtime, Dataset, Band, Layer
//	├── native/          Opaque native library interface
//	│   └── mem/         In-memory driver backed by WebAssembly linear memory
//	└── errors/          Structured error types
//
// # Quick Start
//
//	rt, err := gdal.New(ctx, gdal.WithWorkers(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	ds, err := rt.Create(ctx, "", 512, 512, 1, native.Float64)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	band, err := ds.Band(1)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Promise style
//	stats, err := band.ComputeStatisticsAsync(nil).Await(ctx)
//
//	// Callback style
//	band.FillAsync(42).Then(func(_ struct{}, err error) { ... })
//
// # Lifetime
//
// Every wrapper registers a cleanup with the Go runtime. A band that becomes
// unreachable is released at once; a dataset that becomes unreachable while one
// of its bands is still referenced stays open until the last band goes away.
// [gdal.Dataset.Close] destroys a dataset and all of its children immediately.
//
// # Concurrency
//
// All native calls against one dataset run one at a time, in submission order.
// Calls against different datasets run in parallel on the worker pool.
package gdalasync
