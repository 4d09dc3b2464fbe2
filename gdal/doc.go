// Package gdal provides the typed wrappers applications use: [Runtime],
// [Dataset], [Band] and [Layer].
//
// Every operation that touches native state has a blocking form taking a
// context and an ...Async form returning a *dispatch.Future. Both run the
// same task: the blocking form awaits the future. Cached metadata such as
// [Dataset.RasterSize] and [Band.BlockSize] is returned directly without
// queueing.
//
//	rt, err := gdal.New(ctx, gdal.WithWorkers(4))
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	ds, err := rt.Create(ctx, gdal.CreateSpec{XSize: 256, YSize: 256, Bands: 1})
//	band, err := ds.Band(ctx, 1)
//	buf := make([]uint16, 256*256)
//	err = gdal.Read(ctx, band, gdalasync.Full(256, 256), buf)
//
// # Lifetime
//
// Wrappers are tracked by the runtime's registry: resolving the same native
// handle yields the same wrapper while it is reachable. A dataset stays open
// while it or any of its bands or layers is reachable, and is closed by the
// collector afterwards. [Dataset.Close] closes it at once; its bands and
// layers become unusable and their operations fail synchronously with
// errors.KindDestroyed.
//
// # Errors
//
// Library failures are returned as errors.KindNativeFailure with the
// library's message as the cause. A panic in a [ProgressFunc] aborts the
// native call and fails the operation with errors.KindCallbackPanic.
package gdal
