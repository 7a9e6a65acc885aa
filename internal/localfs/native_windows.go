//go:build windows
// +build windows

package localfs

import (
	"io/fs"
	"os"
	"syscall"
	"time"
)

func extractNativeInfo(info *Info, fsfi fs.FileInfo) error {
	native, ok := fsfi.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return ErrNotSupportedByPlatform
	}
	info.Atim = syscall.NsecToTimespec(native.LastAccessTime.Nanoseconds())
	info.Mtim = syscall.NsecToTimespec(native.LastWriteTime.Nanoseconds())
	info.Ctim = syscall.NsecToTimespec(native.CreationTime.Nanoseconds())

	file, err := os.Open(info.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	var d syscall.ByHandleFileInformation
	if err := syscall.GetFileInformationByHandle(syscall.Handle(file.Fd()), &d); err != nil {
		return err
	}
	info.Nlink = uint64(d.NumberOfLinks)
	info.Dev = uint64(d.VolumeSerialNumber)
	info.Inode = uint64(d.FileIndexHigh)<<32 | uint64(d.FileIndexLow)
	return nil
}

func setMtime(path string, mtimeUnix int64) error {
	t := time.Unix(mtimeUnix, 0)
	return os.Chtimes(path, t, t)
}
