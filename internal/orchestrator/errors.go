package orchestrator

import "errors"

var (
	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("capture session already running")

	// ErrNotRunning is returned by Stop and Trigger when no session is active.
	ErrNotRunning = errors.New("no capture session running")

	ErrBackendConnect        = errors.New("connect to recording backend")
	ErrConfigureReplayBuffer = errors.New("configure replay buffer")
	ErrInitVideoSource       = errors.New("initialize video source")

	// ErrSaveBuffer is logged by the dispatch loop; it never reaches a caller.
	ErrSaveBuffer = errors.New("save replay buffer")

	// ErrNoConnectionInfo is returned by Play before any session has
	// connected successfully.
	ErrNoConnectionInfo = errors.New("no backend connection info, start a session first")
	ErrPlayback         = errors.New("start playback")
)
