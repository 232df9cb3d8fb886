package transport

import "errors"

// Sentinel errors for transport operations.
var (
	// ErrEngineNotReady is reserved for an eager-rejection policy. Transport
	// queues instead, so it is never returned by Send.
	ErrEngineNotReady = errors.New("engine not ready")
	ErrEngineFailed   = errors.New("engine failed to initialize")
	ErrTerminated     = errors.New("transport terminated")
)
