package monitor

import (
	"context"
	"sync/atomic"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/disconnect/pkg/loader"
)

// DefaultQueueDepth is the number of messages buffered by a Publisher.
const DefaultQueueDepth = 32

// Sink delivers encoded messages, Queue implements it.
type Sink interface {
	Publish(topic string, payload []byte) error
}

type outgoing struct {
	topic string
	msg   proto.Message
}

// Publisher forwards loader events to a Sink from its own goroutine, so
// the caller never blocks on the network. Messages are dropped while the
// buffer is full.
type Publisher struct {
	// Uptime stamps command events when set.
	Uptime func() uint32

	sink     Sink
	deviceID string
	queue    chan outgoing
	seq      uint64
	dropped  uint64
}

// DeviceID derives a stable id of this host for topics and client ids.
func DeviceID() string {
	id, err := machineid.ProtectedID("disconnect")
	if err != nil {
		glog.Warningf("monitor: machine id: %v", err)
		return "unknown"
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

// NewPublisher creates a Publisher. An empty deviceID uses DeviceID().
func NewPublisher(sink Sink, deviceID string, depth int) *Publisher {
	if deviceID == "" {
		deviceID = DeviceID()
	}
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Publisher{
		sink:     sink,
		deviceID: deviceID,
		queue:    make(chan outgoing, depth),
	}
}

// Name implements framework.Named.
func (p *Publisher) Name() string {
	return "monitor"
}

// DeviceID returns the id used as the first topic level.
func (p *Publisher) DeviceID() string {
	return p.deviceID
}

// Dropped returns the number of messages discarded on a full buffer.
func (p *Publisher) Dropped() uint64 {
	return atomic.LoadUint64(&p.dropped)
}

// CommandServed implements loader.Observer.
func (p *Publisher) CommandServed(ev loader.Event) {
	msg := NewCommandEvent(ev)
	msg.Seq = atomic.AddUint64(&p.seq, 1)
	if p.Uptime != nil {
		msg.Uptime = p.Uptime()
	}
	p.enqueue(TopicCommand, msg)
}

// Heartbeat publishes hb.
func (p *Publisher) Heartbeat(hb *Heartbeat) {
	p.enqueue(TopicHeartbeat, hb)
}

func (p *Publisher) enqueue(topic string, msg proto.Message) {
	select {
	case p.queue <- outgoing{topic: p.deviceID + "/" + topic, msg: msg}:
	default:
		atomic.AddUint64(&p.dropped, 1)
	}
}

// Run implements framework.Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out := <-p.queue:
			payload, err := proto.Marshal(out.msg)
			if err != nil {
				glog.Errorf("monitor: encode %s: %v", out.topic, err)
				continue
			}
			if err := p.sink.Publish(out.topic, payload); err != nil {
				glog.Warningf("monitor: %v", err)
				continue
			}
			glog.V(4).Infof("PUB %s %s", out.topic, out.msg)
		}
	}
}
