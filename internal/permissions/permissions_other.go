//go:build !darwin

package permissions

import "errors"

// CheckMicrophonePermission always reports access outside macOS, where device
// access is governed by file permissions on the device itself
func CheckMicrophonePermission() PermissionStatus {
	return PermissionAuthorized
}

// RequestMicrophonePermission is only supported on macOS
func RequestMicrophonePermission() error {
	return errors.New("microphone permission settings are only available on macOS")
}
