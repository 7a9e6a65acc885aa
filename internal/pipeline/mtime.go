package pipeline

import "syscall"

// mtimeSeconds truncates a native timestamp to whole seconds, the
// precision the wire protocol carries (spec 9: mtime precision is
// truncated to whole seconds on the wire, by construction of the
// field width).
func mtimeSeconds(ts syscall.Timespec) int64 {
	return int64(ts.Sec)
}
