package server

import (
	"github.com/ValentinKolb/solo/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters.
// It is responsible for handling the requests of a set of message types.
type IRPCServerAdapter interface {
	// Handle handles a request received by the primary.
	// It returns the reply to write back on the same connection (nil for no reply) and
	// whether the request must be dispatched to the application afterwards.
	Handle(req *common.Message) (resp *common.Message, dispatch bool)

	// MessageTypes returns the message types this adapter handles
	MessageTypes() []common.MessageType
}
