package model

import "errors"

// Per-frame failure kinds. None of them is fatal to the process.
var (
	ErrCapture     = errors.New("capture failed")
	ErrPublish     = errors.New("publish failed")
	ErrDecode      = errors.New("malformed encoded payload")
	ErrImageDecode = errors.New("payload is not a valid image")
	ErrPersist     = errors.New("persist failed")
)
