package server

import "encoding/json"

// relayOffer forwards a call offer to the callee's current connection. There
// is no session: if the callee is offline the offer is dropped and the
// caller is not told.
func (cs *ChatServer) relayOffer(fromUserId, toUserId string, offer json.RawMessage) bool {
	if fromUserId == "" {
		cs.drop("call-user to %q dropped: caller has not announced presence", toUserId)
		return false
	}

	return cs.unicast(toUserId, newServerMessage(ServerEventIncomingCall, IncomingCall{
		From:  fromUserId,
		Offer: offer,
	}))
}

// relayAnswer forwards the callee's answer back to the original caller.
func (cs *ChatServer) relayAnswer(callerId string, answer json.RawMessage) bool {
	return cs.unicast(callerId, newServerMessage(ServerEventCallAccepted, CallAccepted{
		Answer: answer,
	}))
}
