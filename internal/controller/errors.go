package controller

import (
	"errors"
	"fmt"
)

// ErrStartInProgress is returned when the start lock for a workspace is
// already held. Retryable once the holder finishes.
var ErrStartInProgress = errors.New("start already in progress")

// PortBusyError reports that the service port stayed occupied past the
// wait bound. Retryable after manual intervention.
type PortBusyError struct {
	Port int
}

func (e *PortBusyError) Error() string {
	return fmt.Sprintf("port %d is busy and did not free up within the wait bound", e.Port)
}

// ExitedEarlyError reports a process that spawned but died within the
// grace window, usually a configuration or environment problem. LogTail
// carries the end of the just-written log for diagnosis.
type ExitedEarlyError struct {
	PID     int
	LogPath string
	LogTail string
}

func (e *ExitedEarlyError) Error() string {
	return fmt.Sprintf("service exited immediately after spawn (pid=%d); see log %s\n--- log tail ---\n%s", e.PID, e.LogPath, e.LogTail)
}

// StopFailedError reports that graceful and forced termination both
// failed. The PID record and handle are intentionally kept so Status
// keeps reporting the instance as running.
type StopFailedError struct {
	PID int
}

func (e *StopFailedError) Error() string {
	return fmt.Sprintf("pid %d still running after graceful and forced stop", e.PID)
}

// IsPortBusy reports whether err is a PortBusyError.
func IsPortBusy(err error) bool {
	var pb *PortBusyError
	return errors.As(err, &pb)
}

// IsExitedEarly reports whether err is an ExitedEarlyError.
func IsExitedEarly(err error) bool {
	var ee *ExitedEarlyError
	return errors.As(err, &ee)
}

// IsStopFailed reports whether err is a StopFailedError.
func IsStopFailed(err error) bool {
	var sf *StopFailedError
	return errors.As(err, &sf)
}
