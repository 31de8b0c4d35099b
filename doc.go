// Package rawzip copies the entries of one zip archive into another without
// decompressing them, over interchangeable storage backends.
//
// An archive is opened as a Session, which owns a storage backend and the Handle
// that reads or writes the archive through it:
//
//   - Direct reads and writes the file with plain OS calls.
//   - Buffered adds a read-ahead and write-behind buffer in front of the file.
//   - Memory keeps the whole archive in memory. An existing archive is loaded when
//     the session opens; a new archive is written to disk when the session closes.
//
// CopyAllRaw walks the entries of a source handle and appends each one to a target
// handle, moving the compressed bytes unchanged. Name, timestamps, method, sizes and
// CRC-32 are carried over from the source record, so no entry is ever re-encoded:
//
//	src, err := rawzip.Open("in.zip", rawzip.Memory, rawzip.OpenRead)
//	if err != nil {
//		return err
//	}
//	defer src.Close()
//
//	dst, err := rawzip.Open("out.zip", rawzip.Memory, rawzip.OpenReadWriteCreate)
//	if err != nil {
//		return err
//	}
//
//	if err := rawzip.CopyAllRaw(ctx, src.Handle(), dst.Handle()); err != nil {
//		dst.Close()
//		return err
//	}
//
//	// out.zip is written here
//	return dst.Close()
package rawzip
