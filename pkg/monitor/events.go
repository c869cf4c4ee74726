package monitor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/disconnect/pkg/loader"
)

// Topic suffixes below the device id.
const (
	TopicCommand   = "command"
	TopicHeartbeat = "heartbeat"
)

// CommandEvent reports one served loader command.
type CommandEvent struct {
	Seq     uint64 `protobuf:"varint,1,opt,name=seq,proto3" json:"seq,omitempty"`
	Command string `protobuf:"bytes,2,opt,name=command,proto3" json:"command,omitempty"`
	Page    int32  `protobuf:"zigzag32,3,opt,name=page,proto3" json:"page,omitempty"`
	Length  uint32 `protobuf:"varint,4,opt,name=length,proto3" json:"length,omitempty"`
	Crc     uint32 `protobuf:"varint,5,opt,name=crc,proto3" json:"crc,omitempty"`
	Error   string `protobuf:"bytes,6,opt,name=error,proto3" json:"error,omitempty"`
	Uptime  uint32 `protobuf:"varint,7,opt,name=uptime,proto3" json:"uptime,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *CommandEvent) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandEvent) Reset() { *m = CommandEvent{} }

// String implements proto.Message.
func (m *CommandEvent) String() string { return proto.CompactTextString(m) }

// Heartbeat is published periodically by a running device.
type Heartbeat struct {
	Uptime   uint32 `protobuf:"varint,1,opt,name=uptime,proto3" json:"uptime,omitempty"`
	Mode     string `protobuf:"bytes,2,opt,name=mode,proto3" json:"mode,omitempty"`
	Commands uint64 `protobuf:"varint,3,opt,name=commands,proto3" json:"commands,omitempty"`
	Errors   uint64 `protobuf:"varint,4,opt,name=errors,proto3" json:"errors,omitempty"`
	Dropped  uint64 `protobuf:"varint,5,opt,name=dropped,proto3" json:"dropped,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Heartbeat) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Heartbeat) Reset() { *m = Heartbeat{} }

// String implements proto.Message.
func (m *Heartbeat) String() string { return proto.CompactTextString(m) }

// NewCommandEvent converts a loader event.
func NewCommandEvent(ev loader.Event) *CommandEvent {
	msg := &CommandEvent{
		Command: ev.Command,
		Page:    int32(ev.Page),
		Length:  uint32(ev.Length),
		Crc:     uint32(ev.CRC),
	}
	var remote *loader.RemoteError
	if errors.As(ev.Err, &remote) {
		msg.Error = remote.Message
	} else if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	return msg
}

// Decode decodes payload according to the last level of topic.
func Decode(topic string, payload []byte) (proto.Message, error) {
	var msg proto.Message
	switch topic[strings.LastIndex(topic, "/")+1:] {
	case TopicCommand:
		msg = &CommandEvent{}
	case TopicHeartbeat:
		msg = &Heartbeat{}
	default:
		return nil, fmt.Errorf("unknown topic %q", topic)
	}
	if err := proto.Unmarshal(payload, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
