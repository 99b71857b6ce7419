package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTransfer   = errors.New("chunk for unknown transfer")
	ErrDuplicateTransfer = errors.New("transfer already in progress")
	ErrChunkOverflow     = errors.New("chunk exceeds declared file size")
	ErrFileTooLarge      = errors.New("file exceeds size limit")
	ErrInvalidMetadata   = errors.New("invalid file metadata")
	ErrShortRead         = errors.New("file ended before its declared size")
	ErrNoRecipients      = errors.New("no open channels to send to")
)

type TransferError struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *TransferError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func NewFileError(op, file string, err error) *TransferError {
	return &TransferError{Op: op, File: file, Err: err}
}

func WrapError(op string, err error, details string) *TransferError {
	return &TransferError{Op: op, Err: err, Details: details}
}
