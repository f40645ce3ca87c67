//go:build linux

package fs

import (
	"io/fs"
	"syscall"
)

func changeTime(info fs.FileInfo) (int64, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok || st == nil {
		return 0, false
	}
	return st.Ctim.Nano(), true
}
