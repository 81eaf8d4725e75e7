package protocol

import (
	"fmt"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
)

// variants maps each opcode to a constructor of its empty message.
var variants = map[Opcode]func() Message{
	OpZoneHello:             func() Message { return &ZoneHello{} },
	OpCharacterLocation:     func() Message { return &CharacterLocation{} },
	OpCharacterNotice:       func() Message { return &CharacterNotice{} },
	OpExpeditionCreated:     func() Message { return &ExpeditionCreated{} },
	OpExpeditionDeleted:     func() Message { return &ExpeditionDeleted{} },
	OpMembersRemoved:        func() Message { return &MembersRemoved{} },
	OpMemberChange:          func() Message { return &MemberChange{} },
	OpMemberSwap:            func() Message { return &MemberSwap{} },
	OpMemberStatus:          func() Message { return &MemberStatus{} },
	OpLeaderChanged:         func() Message { return &LeaderChanged{} },
	OpLockoutUpdate:         func() Message { return &LockoutUpdate{} },
	OpLockState:             func() Message { return &LockState{} },
	OpReplayOnJoin:          func() Message { return &ReplayOnJoin{} },
	OpCompass:               func() Message { return &LocationUpdate{Kind: domain.LocationCompass} },
	OpSafeReturn:            func() Message { return &LocationUpdate{Kind: domain.LocationSafeReturn} },
	OpZoneIn:                func() Message { return &LocationUpdate{Kind: domain.LocationZoneIn} },
	OpOnlineMembersRequest:  func() Message { return &OnlineMembersRequest{} },
	OpOnlineMembersReply:    func() Message { return &OnlineMembersReply{} },
	OpAddPlayer:             func() Message { return &AddPlayerRequest{} },
	OpMakeLeader:            func() Message { return &MakeLeaderRequest{} },
	OpRemoveCharLockouts:    func() Message { return &RemoveCharLockouts{} },
	OpDurationUpdate:        func() Message { return &DurationUpdate{} },
	OpExpireWarning:         func() Message { return &ExpireWarning{} },
	OpInstanceAccess:        func() Message { return &InstanceAccess{} },
	OpInstanceAccessCleared: func() Message { return &InstanceAccessCleared{} },
}

// EncodePayload serializes a message body without the envelope.
func EncodePayload(m Message) []byte {
	w := &writer{buf: make([]byte, 0, 64)}
	m.encode(w)
	return w.buf
}

// DecodePayload parses a message body for the given opcode.
// Trailing bytes are ignored so newer senders may append fields.
func DecodePayload(op Opcode, payload []byte) (Message, error) {
	newMsg, ok := variants[op]
	if !ok {
		return nil, domain.ErrUnknownOpcode.WithDetails(op.String())
	}

	m := newMsg()
	r := &reader{data: payload}
	m.decode(r)
	if r.err {
		return nil, domain.ErrMalformedMessage.WithDetails(
			fmt.Sprintf("%s: short payload of %d bytes", op, len(payload)))
	}
	return m, nil
}

// IsEcho reports whether a message originated at the given identity.
// Messages without a sender are never echoes.
func IsEcho(m Message, self Sender) bool {
	o, ok := m.(Originated)
	if !ok {
		return false
	}
	return o.From() == self
}
