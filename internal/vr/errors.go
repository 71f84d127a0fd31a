package vr

import (
	"errors"
	"fmt"
)

var (
	// ErrRuntimeQueryFailed is returned when a device or property query fails.
	ErrRuntimeQueryFailed = errors.New("runtime query failed")

	// ErrOverlayOperationFailed is returned when an overlay call fails.
	ErrOverlayOperationFailed = errors.New("overlay operation failed")

	// ErrDeviceNotFound is returned when a serial is not in the device registry.
	ErrDeviceNotFound = errors.New("device not found")
)

// PropertyError is the runtime's closed set of property read results.
type PropertyError int

const (
	PropSuccess PropertyError = iota
	PropErrorWrongDataType
	PropErrorWrongDeviceClass
	PropErrorBufferTooSmall
	PropErrorUnknownProperty
	PropErrorInvalidDevice
	PropErrorCouldNotContactServer
	PropErrorValueNotProvidedByDevice
	PropErrorStringExceedsMaximumLength
	PropErrorNotYetAvailable
)

var propertyErrorNames = map[PropertyError]string{
	PropSuccess:                         "TrackedProp_Success",
	PropErrorWrongDataType:              "TrackedProp_WrongDataType",
	PropErrorWrongDeviceClass:           "TrackedProp_WrongDeviceClass",
	PropErrorBufferTooSmall:             "TrackedProp_BufferTooSmall",
	PropErrorUnknownProperty:            "TrackedProp_UnknownProperty",
	PropErrorInvalidDevice:              "TrackedProp_InvalidDevice",
	PropErrorCouldNotContactServer:      "TrackedProp_CouldNotContactServer",
	PropErrorValueNotProvidedByDevice:   "TrackedProp_ValueNotProvidedByDevice",
	PropErrorStringExceedsMaximumLength: "TrackedProp_StringExceedsMaximumLength",
	PropErrorNotYetAvailable:            "TrackedProp_NotYetAvailable",
}

func (e PropertyError) String() string {
	if name, ok := propertyErrorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("TrackedProp_%d", int(e))
}

// OverlayError is the runtime's closed set of overlay call results.
type OverlayError int

const (
	OverlayErrorNone OverlayError = iota
	OverlayErrorUnknownOverlay
	OverlayErrorInvalidHandle
	OverlayErrorPermissionDenied
	OverlayErrorOverlayLimitExceeded
	OverlayErrorWrongVisibilityType
	OverlayErrorKeyTooLong
	OverlayErrorNameTooLong
	OverlayErrorKeyInUse
	OverlayErrorWrongTransformType
	OverlayErrorInvalidTrackedDevice
	OverlayErrorInvalidParameter
	OverlayErrorRequestFailed
	OverlayErrorInvalidTexture
	OverlayErrorUnableToLoadFile
)

var overlayErrorNames = map[OverlayError]string{
	OverlayErrorNone:                 "None",
	OverlayErrorUnknownOverlay:       "UnknownOverlay",
	OverlayErrorInvalidHandle:        "InvalidHandle",
	OverlayErrorPermissionDenied:     "PermissionDenied",
	OverlayErrorOverlayLimitExceeded: "OverlayLimitExceeded",
	OverlayErrorWrongVisibilityType:  "WrongVisibilityType",
	OverlayErrorKeyTooLong:           "KeyTooLong",
	OverlayErrorNameTooLong:          "NameTooLong",
	OverlayErrorKeyInUse:             "KeyInUse",
	OverlayErrorWrongTransformType:   "WrongTransformType",
	OverlayErrorInvalidTrackedDevice: "InvalidTrackedDevice",
	OverlayErrorInvalidParameter:     "InvalidParameter",
	OverlayErrorRequestFailed:        "RequestFailed",
	OverlayErrorInvalidTexture:       "InvalidTexture",
	OverlayErrorUnableToLoadFile:     "UnableToLoadFile",
}

func (e OverlayError) String() string {
	if name, ok := overlayErrorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("OverlayError(%d)", int(e))
}

// PropertyQueryError reports a failed property read for a device index.
type PropertyQueryError struct {
	Device uint32
	Code   PropertyError
}

func (e *PropertyQueryError) Error() string {
	return fmt.Sprintf("%s: device %d: %s", ErrRuntimeQueryFailed, e.Device, e.Code)
}

func (e *PropertyQueryError) Unwrap() error {
	return ErrRuntimeQueryFailed
}

// OverlayOpError reports a failed overlay call.
type OverlayOpError struct {
	Op   string
	Code OverlayError
}

func (e *OverlayOpError) Error() string {
	return fmt.Sprintf("%s: %s: code %s", ErrOverlayOperationFailed, e.Op, e.Code)
}

func (e *OverlayOpError) Unwrap() error {
	return ErrOverlayOperationFailed
}

// Check converts an overlay result into an error, nil on success.
func Check(op string, code OverlayError) error {
	if code == OverlayErrorNone {
		return nil
	}
	return &OverlayOpError{Op: op, Code: code}
}
