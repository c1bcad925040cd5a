//go:build darwin

package envinfo

import "golang.org/x/sys/unix"

// FileTimes returns the change and modification times of path in unix
// nanoseconds.
func FileTimes(path string) (ctime, mtime int64, err error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return -1, -1, err
	}
	return st.Ctimespec.Nano(), st.Mtimespec.Nano(), nil
}
