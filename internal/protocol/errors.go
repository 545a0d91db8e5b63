package protocol

import "errors"

var (
	ErrInvalidControl  = errors.New("protocol: invalid control message")
	ErrInvalidSnapshot = errors.New("protocol: invalid event snapshot")
)
