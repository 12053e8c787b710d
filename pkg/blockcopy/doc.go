// Package blockcopy implements the dirty-bitmap driven copy engine used by
// block jobs.
//
// A State owns a dirty bitmap over the source device. Copy walks a range of
// that bitmap, claims runs of dirty clusters, and moves them to the target
// either with a device-to-device offload or through a bounce buffer. The
// offload path is abandoned for good on its first failure.
//
// Concurrent Copy calls on the same State never transfer the same cluster
// twice: a run is claimed by clearing its bits and registering an in-flight
// request, and a caller that runs into another caller's request waits for it
// to finish or shrink and then scans again.
//
// Basic usage:
//
//	s, err := blockcopy.New(src, dst, 64<<10)
//	if err != nil {
//	    return err
//	}
//	s.SetCallbacks(blockcopy.Callbacks{OnBytesCopied: progress.Add})
//	s.Bitmap().SetAll()
//	if isRead, err := s.Copy(ctx, 0, src.Length()); err != nil {
//	    ...
//	}
package blockcopy
