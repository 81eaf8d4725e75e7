package protocol

import "fmt"

// Opcode tags a message variant inside an envelope.
type Opcode uint16

// Link control.
const (
	OpZoneHello         Opcode = 0x0001
	OpCharacterLocation Opcode = 0x0002
	OpCharacterNotice   Opcode = 0x0003
)

// Expedition replication.
const (
	OpExpeditionCreated Opcode = 0x0400 + iota
	OpExpeditionDeleted
	OpMembersRemoved
	OpMemberChange
	OpMemberSwap
	OpMemberStatus
	OpLeaderChanged
	OpLockoutUpdate
	OpLockState
	OpReplayOnJoin
	OpCompass
	OpSafeReturn
	OpZoneIn
	OpOnlineMembersRequest
	OpOnlineMembersReply
	OpAddPlayer
	OpMakeLeader
	OpRemoveCharLockouts
	OpDurationUpdate
	OpExpireWarning
	OpInstanceAccess
	OpInstanceAccessCleared
)

var opcodeNames = map[Opcode]string{
	OpZoneHello:             "zone_hello",
	OpCharacterLocation:     "character_location",
	OpCharacterNotice:       "character_notice",
	OpExpeditionCreated:     "expedition_created",
	OpExpeditionDeleted:     "expedition_deleted",
	OpMembersRemoved:        "members_removed",
	OpMemberChange:          "member_change",
	OpMemberSwap:            "member_swap",
	OpMemberStatus:          "member_status",
	OpLeaderChanged:         "leader_changed",
	OpLockoutUpdate:         "lockout_update",
	OpLockState:             "lock_state",
	OpReplayOnJoin:          "replay_on_join",
	OpCompass:               "compass",
	OpSafeReturn:            "safe_return",
	OpZoneIn:                "zone_in",
	OpOnlineMembersRequest:  "online_members_request",
	OpOnlineMembersReply:    "online_members_reply",
	OpAddPlayer:             "add_player",
	OpMakeLeader:            "make_leader",
	OpRemoveCharLockouts:    "remove_char_lockouts",
	OpDurationUpdate:        "duration_update",
	OpExpireWarning:         "expire_warning",
	OpInstanceAccess:        "instance_access",
	OpInstanceAccessCleared: "instance_access_cleared",
}

// String returns the snake_case name used in logs and metric labels.
func (o Opcode) String() string {
	if s, ok := opcodeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("opcode_0x%04x", uint16(o))
}

// Opcodes returns every known opcode.
func Opcodes() []Opcode {
	out := make([]Opcode, 0, len(opcodeNames))
	for op := range opcodeNames {
		out = append(out, op)
	}
	return out
}
