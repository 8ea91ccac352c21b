package gripper

import "errors"

var (
	// ErrInvalidID indicates an actuator slot index outside 0..MaxGrippers-1
	ErrInvalidID = errors.New("gripper: invalid actuator id")

	// ErrInvalidMapping indicates a mapping that fails validation
	ErrInvalidMapping = errors.New("gripper: invalid angle mapping")

	// ErrInvalidPercent indicates a target outside 0..100
	ErrInvalidPercent = errors.New("gripper: percent out of range")

	// ErrNotCalibrated indicates a slot whose mapping has not been configured
	ErrNotCalibrated = errors.New("gripper: actuator not calibrated")

	// ErrNotImplemented is returned by reserved operations
	ErrNotImplemented = errors.New("gripper: operation not implemented")
)
