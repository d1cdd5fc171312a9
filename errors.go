package souldb

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedVersion = errors.New("unsupported store version")
	ErrSaveCollision      = errors.New("could not create a unique temporary file")
	ErrClosed             = errors.New("store is closed")
)

// DataError reports a store file that could not be decoded past Off.
type DataError struct {
	Path string
	Off  int64
	Err  error
	Msg  string
}

func dataErrf(path string, off int64, err error, format string, args ...any) error {
	return &DataError{path, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s at offset %d: %v", e.Path, e.Msg, e.Off, e.Err)
	} else {
		return fmt.Sprintf("%s: %s at offset %d", e.Path, e.Msg, e.Off)
	}
}
