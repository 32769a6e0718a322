package transport

import (
	"context"

	"github.com/chassislabs/boardlink/pkg/models"
)

// Handler receives channel lifecycle events and inbound frames from the
// client. *daemon.Daemon satisfies it.
type Handler interface {
	// SetConnectivity reports channel health transitions.
	SetConnectivity(state models.ConnectivityState)

	// SetAgentInfo records the discovery metadata of the agent the client
	// attached to.
	SetAgentInfo(info models.AgentInfo)

	// Route dispatches one raw inbound frame.
	Route(ctx context.Context, raw []byte)

	// RegisterUploadCanceller installs the client's upload interruption
	// capability for the lifetime of the connection.
	RegisterUploadCanceller(fn func(context.Context) error)
}
