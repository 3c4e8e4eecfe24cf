package server

import (
	"github.com/ValentinKolb/solo/rpc/common"
)

// NewInstanceServerAdapter creates the adapter for secondary announcements and
// application messages. Both are acknowledged first and then dispatched.
func NewInstanceServerAdapter() IRPCServerAdapter {
	return &instanceServerAdapter{}
}

type instanceServerAdapter struct{}

func (adapter *instanceServerAdapter) MessageTypes() []common.MessageType {
	return []common.MessageType{common.MsgTNewInstance, common.MsgTInstanceMessage}
}

func (adapter *instanceServerAdapter) Handle(req *common.Message) (*common.Message, bool) {
	switch req.MsgType {
	case common.MsgTNewInstance, common.MsgTInstanceMessage:
		return common.NewAcknowledge(), true
	default:
		Logger.Warningf("Instance adapter - unsupported message type: %s", req.MsgType)
		return nil, false
	}
}
