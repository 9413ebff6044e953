package vacuum

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceCommunication marks a transport or RPC failure.
	ErrDeviceCommunication = errors.New("device communication failed")
	// ErrCommandRejected marks an acknowledgement that matched neither success encoding.
	ErrCommandRejected = errors.New("command rejected")
	// ErrUnknownProperty is returned by reverse lookups of undeclared names.
	ErrUnknownProperty = errors.New("unknown property")
	ErrUnknownDevice   = errors.New("unknown device")
	ErrInvalidArgument = errors.New("invalid argument")
)

// CommandRejectedError carries the acknowledgement the device sent back.
type CommandRejectedError struct {
	Method   string
	Response any
}

func (e CommandRejectedError) Error() string {
	return fmt.Sprintf("%s rejected: unexpected response %v", e.Method, e.Response)
}

func (e CommandRejectedError) Is(target error) bool {
	return target == ErrCommandRejected
}
