//go:build linux || darwin

package files

import "golang.org/x/sys/unix"

// StatfsDiskSpace queries the filesystem with statfs(2)
type StatfsDiskSpace struct{}

func (StatfsDiskSpace) Usage(path string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize, nil
}
