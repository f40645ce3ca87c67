//go:build !linux && !darwin

package fs

import "io/fs"

func changeTime(_ fs.FileInfo) (int64, bool) {
	return 0, false
}
