package core

import (
	"errors"
)

// Recoverable frame errors. The caller resizes and retries, or skips the frame.
var (
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	ErrFrameSkipped       = errors.New("frame skipped")
)

// ErrDeviceLost is fatal for the instance: every native handle it owns is invalid.
var ErrDeviceLost = errors.New("device lost")

// Caller errors.
var (
	ErrAlreadyReleased   = errors.New("resource already queued for release")
	ErrNotBuilt          = errors.New("resource not built")
	ErrLayoutMismatch    = errors.New("binding table layout incompatible with pipeline")
	ErrInvalidBinding    = errors.New("invalid binding")
	ErrResourceLimit     = errors.New("resource limit exceeded")
	ErrInvalidState      = errors.New("invalid frame state")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrIncompatibleShare = errors.New("resource cannot be shared with this instance")
	ErrImmutable         = errors.New("immutable resource already in use")
	ErrResourceInUse     = errors.New("resource referenced by an in-flight frame")
	ErrShaderNotFound    = errors.New("no shader source for backend")
)
