package transport

import "errors"

var (
	// ErrAgentNotFound means no agent answered on the local probe range.
	ErrAgentNotFound = errors.New("no agent found on the local probe range")

	// ErrChannelClosed means a command was attempted without an open
	// channel.
	ErrChannelClosed = errors.New("agent channel is not open")

	// ErrUploadRejected means the agent's upload endpoint refused the
	// request.
	ErrUploadRejected = errors.New("agent rejected the upload")

	errMissingHandler    = errors.New("handler is required")
	errAlreadyConnected  = errors.New("client is already connected")
	errInvalidPortRange  = errors.New("probe port range is inverted")
	errNoChannelEndpoint = errors.New("agent advertised no channel endpoint")
)
