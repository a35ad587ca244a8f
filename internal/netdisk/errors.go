package netdisk

import "fmt"

// RemoteError carries the vendor's code/message pair so the classifier can
// map it onto a pipeline decision.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == 0 {
		return e.Message
	}
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}
