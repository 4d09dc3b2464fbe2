// Package mem is an in-memory implementation of native.Library.
//
// It behaves like the real library where it matters to the layers above:
// handles are small integers that are reused after close, every call on a
// dataset must be serialized by the caller, closing a dataset invalidates
// its band and layer handles, and errors carry the library's own messages.
//
// Pixel data of each open dataset lives in the linear memory of a dedicated
// WebAssembly instance running on wazero. Bulk kernels such as Fill execute
// inside the guest; their exported signatures are declared in WIT and
// checked against the compiled module when the driver starts. Vector
// features are kept per layer in a B-tree ordered by feature id.
//
// Datasets are stored in a process-local virtual filesystem. Anonymous
// datasets get a /vsimem/<uuid> path. Closing a dataset writes its pixels
// back to the file so it can be opened again.
//
// The driver detects overlapping calls on one dataset and fails the second
// one instead of corrupting state; [Driver.Violations] counts them.
package mem
