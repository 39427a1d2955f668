//go:build !linux && !darwin

package files

import "errors"

type StatfsDiskSpace struct{}

func (StatfsDiskSpace) Usage(string) (uint64, uint64, error) {
	return 0, 0, errors.New("disk space query not supported on this platform")
}
