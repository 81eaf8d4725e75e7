package protocol

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
)

func TestFixedWidthTruncation(t *testing.T) {
	long := strings.Repeat("n", 100)
	in := &MemberChange{
		ExpeditionID:  3,
		Sender:        Sender{ZoneID: 10, InstanceID: 2},
		CharacterID:   77,
		CharacterName: long,
		Status:        domain.StatusOnline,
	}

	payload := EncodePayload(in)
	if want := 4 + 8 + 4 + CharacterNameWidth + 1 + 1; len(payload) != want {
		t.Fatalf("payload size = %d, want %d", len(payload), want)
	}

	out, err := DecodePayload(OpMemberChange, payload)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	got := out.(*MemberChange)
	if len(got.CharacterName) != CharacterNameWidth-1 {
		t.Errorf("name length = %d, want %d", len(got.CharacterName), CharacterNameWidth-1)
	}
	if got.CharacterName != FixedText(long, CharacterNameWidth) {
		t.Error("decoded name should equal FixedText of the input")
	}
	if got.CharacterID != 77 || got.Sender != in.Sender {
		t.Errorf("fields after the text were shifted: %+v", got)
	}
}

func TestEventNameTruncation(t *testing.T) {
	in := &LockoutUpdate{ExpeditionID: 1, EventName: strings.Repeat("e", 400), Duration: 60}
	out, err := DecodePayload(OpLockoutUpdate, EncodePayload(in))
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	got := out.(*LockoutUpdate)
	if len(got.EventName) != EventNameWidth-1 {
		t.Errorf("event name length = %d", len(got.EventName))
	}
	if got.Duration != 60 {
		t.Errorf("Duration = %d, want 60", got.Duration)
	}
}

func TestEveryOpcodeHasAVariant(t *testing.T) {
	for _, op := range Opcodes() {
		newMsg, ok := variants[op]
		if !ok {
			t.Errorf("%s has no variant", op)
			continue
		}
		m := newMsg()
		if m.Opcode() != op {
			t.Errorf("variant for %s reports %s", op, m.Opcode())
		}
		if _, err := DecodePayload(op, EncodePayload(m)); err != nil {
			t.Errorf("%s: zero message does not decode: %v", op, err)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := DecodePayload(Opcode(0x7fff), nil); !errors.Is(err, domain.ErrUnknownOpcode) {
		t.Errorf("unknown opcode error = %v", err)
	}

	payload := EncodePayload(&LeaderChanged{ExpeditionID: 1, CharacterName: "A"})
	if _, err := DecodePayload(OpLeaderChanged, payload[:10]); !errors.Is(err, domain.ErrMalformedMessage) {
		t.Errorf("short payload error = %v", err)
	}

	// A declared entry count larger than the payload must not allocate.
	req := EncodePayload(NewOnlineMembersRequest(Sender{ZoneID: 1}, nil))
	req[8] = 0xff
	req[9] = 0xff
	if _, err := DecodePayload(OpOnlineMembersRequest, req); !errors.Is(err, domain.ErrMalformedMessage) {
		t.Errorf("oversized count error = %v", err)
	}
}

func TestIsEcho(t *testing.T) {
	self := Sender{ZoneID: 20, InstanceID: 0}

	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"own member change", &MemberChange{Sender: self}, true},
		{"other instance", &MemberChange{Sender: Sender{ZoneID: 20, InstanceID: 4}}, false},
		{"own lock state", NewLockState(1, self, true), true},
		{"world deletion", NewExpeditionDeleted(1, Sender{}), false},
		{"no sender", &DurationUpdate{ExpeditionID: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEcho(tt.msg, self); got != tt.want {
				t.Errorf("IsEcho() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstanceAccessHost(t *testing.T) {
	in := &InstanceAccess{ZoneID: 300, InstanceID: 42, CharacterID: 77, Removed: true}
	if got := in.Host(); got != (Sender{ZoneID: 300, InstanceID: 42}) {
		t.Errorf("Host() = %+v", got)
	}
	if IsEcho(in, in.Host()) {
		t.Error("instance access has no sender and is never an echo")
	}

	out, err := DecodePayload(in.Opcode(), EncodePayload(in))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("decoded = %+v, want %+v", out, in)
	}

	cleared := &InstanceAccessCleared{ZoneID: 300, InstanceID: 42}
	if cleared.Host() != in.Host() {
		t.Errorf("cleared Host() = %+v", cleared.Host())
	}
}

func TestLocationKindSelectsOpcode(t *testing.T) {
	in := &LocationUpdate{
		Kind:     domain.LocationSafeReturn,
		OwnerID:  5,
		Location: domain.Location{ZoneID: 9, X: 1.5, Y: -2, Z: 3, Heading: 128},
	}
	if in.Opcode() != OpSafeReturn {
		t.Fatalf("Opcode() = %s", in.Opcode())
	}

	out, err := DecodePayload(in.Opcode(), EncodePayload(in))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("decoded = %+v, want %+v", out, in)
	}
}

func TestCodecEnvelope(t *testing.T) {
	codec, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	defer codec.Close()

	t.Run("small payload stays raw", func(t *testing.T) {
		frame, id, err := codec.Marshal(NewExpeditionCreated(4, Sender{ZoneID: 1}))
		if err != nil {
			t.Fatal(err)
		}
		h, m, err := codec.Unmarshal(frame)
		if err != nil {
			t.Fatal(err)
		}
		if h.Flags&FlagCompressed != 0 {
			t.Error("small payload should not be compressed")
		}
		if h.MessageID != id || h.Opcode != OpExpeditionCreated {
			t.Errorf("header = %+v", h)
		}
		if m.(*ExpeditionCreated).ExpeditionID != 4 {
			t.Errorf("message = %+v", m)
		}
	})

	t.Run("large payload is compressed", func(t *testing.T) {
		entries := make([]OnlineEntry, 200)
		for i := range entries {
			entries[i] = OnlineEntry{ExpeditionID: 1, CharacterID: uint32(i + 1)}
		}
		frame, _, err := codec.Marshal(NewOnlineMembersReply(entries))
		if err != nil {
			t.Fatal(err)
		}
		h, m, err := codec.Unmarshal(frame)
		if err != nil {
			t.Fatal(err)
		}
		if h.Flags&FlagCompressed == 0 {
			t.Error("large payload should be compressed")
		}
		got := m.(*OnlineMembersReply).Entries
		if len(got) != 200 || got[199].CharacterID != 200 {
			t.Errorf("entries = %d, last = %+v", len(got), got[len(got)-1])
		}
	})

	t.Run("bad magic", func(t *testing.T) {
		frame, _, _ := codec.Marshal(&ExpireWarning{ExpeditionID: 1, MinutesRemaining: 5})
		frame[0] = 0
		if _, _, err := codec.Unmarshal(frame); !errors.Is(err, domain.ErrMalformedMessage) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		frame, _, _ := codec.Marshal(&ExpireWarning{ExpeditionID: 1})
		if _, err := ReadHeader(frame[:len(frame)-1]); !errors.Is(err, domain.ErrMalformedMessage) {
			t.Errorf("error = %v", err)
		}
	})
}
