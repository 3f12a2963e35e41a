package domain

import "errors"

var (
	// ErrNotFound means a selector lookup found nothing within its wait window.
	ErrNotFound = errors.New("element not found")
	// ErrInteraction means an element was found but clicking or typing into it failed.
	ErrInteraction = errors.New("element interaction failed")
	// ErrNavigation means the browser could not load a listing page.
	ErrNavigation = errors.New("navigation failed")
	// ErrPersistence means the progress snapshot could not be read or written.
	ErrPersistence = errors.New("progress persistence failed")
	// ErrCorruptSnapshot means the progress snapshot exists but is not valid.
	ErrCorruptSnapshot = errors.New("corrupt progress snapshot")
	// ErrConfig means operator supplied configuration is malformed.
	ErrConfig = errors.New("invalid configuration")
)

