package server

import (
	"github.com/ValentinKolb/solo/rpc/common"
)

// NewQueryServerAdapter creates the adapter answering PID and user queries of
// secondaries. Queries are answered directly and never dispatched.
func NewQueryServerAdapter(pid int64, user string) IRPCServerAdapter {
	return &queryServerAdapter{
		pid:  common.EncodePid(pid),
		user: user,
	}
}

type queryServerAdapter struct {
	pid  []byte
	user string
}

func (adapter *queryServerAdapter) MessageTypes() []common.MessageType {
	return []common.MessageType{common.MsgTPrimaryPidRequest, common.MsgTPrimaryUserRequest}
}

func (adapter *queryServerAdapter) Handle(req *common.Message) (*common.Message, bool) {
	switch req.MsgType {
	case common.MsgTPrimaryPidRequest:
		return common.NewPrimaryPidResponse(adapter.pid), false
	case common.MsgTPrimaryUserRequest:
		return common.NewPrimaryUserResponse(adapter.user), false
	default:
		Logger.Warningf("Query adapter - unsupported message type: %s", req.MsgType)
		return nil, false
	}
}
