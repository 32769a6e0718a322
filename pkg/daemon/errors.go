package daemon

import "errors"

var (
	// ErrUploadCancellationUnsupported is returned by StopUpload when no
	// cancellation capability was registered; some host environments
	// cannot interrupt an in-flight upload.
	ErrUploadCancellationUnsupported = errors.New("upload cancellation is not supported in this environment")

	// ErrUploadFailed and ErrDownloadFailed wrap terminal failures the
	// agent reports over the channel.
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("tool download failed")

	// ErrUnknownPort is returned when a serial monitor is requested for a
	// port absent from the current device list.
	ErrUnknownPort = errors.New("port not present in device list")

	errInvalidPollingInterval = errors.New("polling interval must be greater than zero")
	errMissingCommander       = errors.New("commander is required")
)
