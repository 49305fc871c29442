//go:build linux

package web

import "golang.org/x/sys/unix"

// snapshotDisk reports free space on the filesystem holding path, so a long
// recording does not silently fill the card.
func snapshotDisk(path string) *DiskSnapshot {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return &DiskSnapshot{Path: path, LastError: err.Error()}
	}

	bsize := uint64(st.Bsize)
	return &DiskSnapshot{
		Path:       path,
		TotalBytes: st.Blocks * bsize,
		FreeBytes:  st.Bfree * bsize,
		AvailBytes: st.Bavail * bsize,
	}
}
