// Package stream moves raster windows through a band in chunks.
//
// A [ReadStream] prefetches chunks with up to HighWaterMark reads queued on
// the band's dataset. A [WriteStream] assembles incoming elements into
// chunks and writes each complete chunk with one task, waiting while
// HighWaterMark writes are in flight. A [Mux] pulls aligned chunks from
// several read streams and combines them.
//
// Chunks span the full window width. With Options.BlockOptimize they follow
// the band's block rows so the driver never re-reads a block; otherwise
// each chunk is one row. Options.Flip walks the window bottom to top with
// rows stored bottom-up, the way flipped rasters are addressed.
//
//	rs, err := stream.NewReadStream[float32](src, win, stream.Options{BlockOptimize: true})
//	ws, err := stream.NewWriteStream[float32](dst, win, stream.Options{BlockOptimize: true})
//	err = rs.ForEach(ctx, func(c stream.Chunk[float32]) error {
//	    return ws.Write(ctx, c.Data)
//	})
//	err = ws.Close(ctx)
//
// Streams are not safe for concurrent use.
package stream
