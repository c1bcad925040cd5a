//go:build !linux && !darwin

package envinfo

import "os"

// FileTimes returns the change and modification times of path in unix
// nanoseconds. Without a portable ctime the modification time stands in
// for both.
func FileTimes(path string) (ctime, mtime int64, err error) {
	fi, err := os.Stat(path)
	if err != nil {
		return -1, -1, err
	}
	m := fi.ModTime().UnixNano()
	return m, m, nil
}
