package mmap

import (
	"os"
	"syscall"
	"unsafe"
)

func mmap(f *os.File, size int, opt Options) ([]byte, error) {
	var sizelo, sizehi uint32
	prot := uint32(syscall.PAGE_READONLY)
	access := uint32(syscall.FILE_MAP_READ)
	if opt.Has(Writable) {
		if err := f.Truncate(int64(size)); err != nil {
			return nil, err
		}
		sizehi = uint32(uint64(size) >> 32)
		sizelo = uint32(uint64(size))
		prot = syscall.PAGE_READWRITE
		access = syscall.FILE_MAP_WRITE
	}

	h, errno := syscall.CreateFileMapping(syscall.Handle(f.Fd()), nil, prot, sizehi, sizelo, nil)
	if h == 0 {
		return nil, os.NewSyscallError("CreateFileMapping", errno)
	}
	addr, errno := syscall.MapViewOfFile(h, access, 0, 0, 0)
	if addr == 0 {
		_ = syscall.CloseHandle(h)
		return nil, os.NewSyscallError("MapViewOfFile", errno)
	}
	// the view keeps the mapping object alive
	if err := syscall.CloseHandle(h); err != nil {
		_ = syscall.UnmapViewOfFile(addr)
		return nil, os.NewSyscallError("CloseHandle", err)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func munmap(b []byte) error {
	if err := syscall.UnmapViewOfFile(uintptr(unsafe.Pointer(&b[0]))); err != nil {
		return os.NewSyscallError("UnmapViewOfFile", err)
	}
	return nil
}
