//go:build windows
// +build windows

package localfs

// POSIX ACLs have no Windows equivalent; want_acls is simply never
// satisfiable on this platform.
func IsACLXattr(name string) bool { return false }

func ApplyACL(path string, want []byte) error { return ErrNotSupportedByPlatform }

func GetACL(path string) ([]byte, error) { return nil, ErrNotSupportedByPlatform }
