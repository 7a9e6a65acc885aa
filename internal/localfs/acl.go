//go:build !windows
// +build !windows

package localfs

import (
	"slices"

	"github.com/pkg/xattr"
)

// ACLXattrName is the xattr POSIX ACLs are stored under on Linux; the
// Xattr wire message carries ACLs piggybacked on this name rather than
// needing a dedicated message type; see DESIGN.md.
const ACLXattrName = "system.posix_acl_access"

// GetACL reads path's POSIX ACL, gated by the Hello want_acls flag. The
// result is the raw value of the system.posix_acl_access xattr, ready for
// wire transport.
func GetACL(path string) ([]byte, error) {
	return xattr.LGet(path, ACLXattrName)
}

// ApplyACL sets path's ACL to the bytes carried in a received Xattr entry,
// skipping the call if the current ACL already matches (mirroring the
// teacher's compare-then-set pattern in main.go).
func ApplyACL(path string, want []byte) error {
	if len(want) == 0 {
		return nil
	}
	current, err := xattr.LGet(path, ACLXattrName)
	if err == nil && slices.Equal(current, want) {
		return nil
	}
	return xattr.LSet(path, ACLXattrName, want)
}

// IsACLXattr reports whether name is the reserved ACL pseudo-xattr, so the
// sender/receiver can decide whether to include it based on want_acls
// independently of want_xattrs.
func IsACLXattr(name string) bool {
	return name == ACLXattrName
}
