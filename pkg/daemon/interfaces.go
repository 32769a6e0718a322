package daemon

import (
	"context"
	"time"

	"github.com/chassislabs/boardlink/pkg/models"
)

// Commander is the outbound contract to the transport layer. The daemon never
// touches sockets itself; every agent-facing action goes through this
// interface so hosts can swap transports and tests can observe dispatch.
type Commander interface {
	// Upload hands a programming request to the agent. Completion is
	// reported asynchronously over the inbound channel, not by this call.
	Upload(ctx context.Context, payload *models.UploadPayload, info *models.UploadCommandInfo) error

	// DownloadTool asks the agent to fetch a toolchain component.
	DownloadTool(ctx context.Context, req models.ToolRequest) error

	// OpenSerialMonitor attaches the agent to a serial port and starts
	// streaming its output over the channel.
	OpenSerialMonitor(ctx context.Context, port string, baud int) error

	// CloseSerialMonitor detaches the agent from a serial port.
	CloseSerialMonitor(ctx context.Context, port string) error

	// CloseAllPorts releases every serial port the agent holds open.
	CloseAllPorts(ctx context.Context) error

	// RequestPortList asks the agent to enumerate attached boards. The
	// result arrives asynchronously as a port list message.
	RequestPortList(ctx context.Context) error
}

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}
