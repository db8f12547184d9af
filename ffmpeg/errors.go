// ffwatcher/ffmpeg/errors.go
package ffmpeg

import "fmt"

// Reason classifies why an encode failed. Each completion check has its own
// reason so logs can say exactly which one tripped.
type Reason string

const (
	ReasonCommand       Reason = "invalid command arguments"
	ReasonSpawn         Reason = "failed to start process"
	ReasonExit          Reason = "process exited with an error"
	ReasonNoTerminator  Reason = "progress stream ended without terminator"
	ReasonMissingOutput Reason = "output file missing"
	ReasonEmptyOutput   Reason = "output file is empty"
	ReasonResources     Reason = "insufficient system resources"
)

type ExecError struct {
	Reason Reason
	Err    error
}

func (e *ExecError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying. Only a resource
// shortage detected before the process is spawned qualifies; every failure
// of the encode itself is permanent.
func (e *ExecError) Transient() bool { return e.Reason == ReasonResources }
