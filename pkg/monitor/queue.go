// Package monitor publishes loader activity to an MQTT broker and
// subscribes to it from the host.
package monitor

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// Handler receives a message, topic has the queue prefix removed.
type Handler func(topic string, payload []byte)

// DefaultPublishTimeout bounds Publish.
const DefaultPublishTimeout = 5 * time.Second

// Queue is a paho client bound to a topic prefix.
type Queue struct {
	Client         paho.Client
	Prefix         string
	PublishTimeout time.Duration

	lock sync.RWMutex
	subs map[string][]*Subscription
}

// Subscription is a registered handler.
type Subscription struct {
	queue   *Queue
	pattern string
	handler Handler
}

// MatchTopic reports whether topic matches the pattern, which may contain
// the MQTT wildcards + and a trailing #.
func MatchTopic(topic, pattern string) bool {
	levels, filters := strings.Split(topic, "/"), strings.Split(pattern, "/")
	for n, filter := range filters {
		if filter == "#" && n+1 == len(filters) {
			return true
		}
		if n >= len(levels) {
			return false
		}
		if filter != "+" && filter != levels[n] {
			return false
		}
	}
	return len(levels) == len(filters)
}

// ClientOptionsFromURL parses mqtt://[user:pass@]host:port/prefix/?client-id=id
// into client options and the topic prefix.
func ClientOptionsFromURL(brokerURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, "", err
	}
	scheme := u.Scheme
	switch scheme {
	case "", "mqtt":
		scheme = "tcp"
	case "mqtts":
		scheme = "ssl"
	}
	if u.Host == "" {
		return nil, "", fmt.Errorf("broker url %q: missing host", brokerURL)
	}
	opts := paho.NewClientOptions().
		AddBroker(scheme + "://" + u.Host).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	if id := u.Query().Get("client-id"); id != "" {
		opts.SetClientID(id)
	}
	return opts, strings.TrimPrefix(u.Path, "/"), nil
}

// NewQueue creates a Queue, the handlers in options are replaced.
func NewQueue(options *paho.ClientOptions, prefix string) *Queue {
	q := &Queue{Prefix: prefix, PublishTimeout: DefaultPublishTimeout}
	options.SetOnConnectHandler(q.onConnect)
	options.SetConnectionLostHandler(q.onConnectionLost)
	q.Client = paho.NewClient(options)
	return q
}

// NewQueueFromURL creates a Queue from a broker URL.
func NewQueueFromURL(brokerURL string) (*Queue, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return NewQueue(opts, prefix), nil
}

// Connect connects to the broker and waits for the result.
func (q *Queue) Connect() error {
	token := q.Client.Connect()
	token.Wait()
	return token.Error()
}

// Close disconnects from the broker.
func (q *Queue) Close() error {
	q.Client.Disconnect(250)
	return nil
}

// Publish sends payload to topic under the prefix.
func (q *Queue) Publish(topic string, payload []byte) error {
	token := q.Client.Publish(q.Prefix+topic, 0, false, payload)
	timeout := q.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	return token.Error()
}

// Subscribe registers handler for pattern under the prefix.
func (q *Queue) Subscribe(pattern string, handler Handler) *Subscription {
	sub := &Subscription{queue: q, pattern: pattern, handler: handler}
	q.lock.Lock()
	if q.subs == nil {
		q.subs = make(map[string][]*Subscription)
	}
	first := len(q.subs[pattern]) == 0
	q.subs[pattern] = append(q.subs[pattern], sub)
	q.lock.Unlock()
	if first && q.connected() {
		glog.V(2).Infof("SUB %q", q.Prefix+pattern)
		q.Client.Subscribe(q.Prefix+pattern, 0, q.dispatch)
	}
	return sub
}

// Close removes the handler.
func (s *Subscription) Close() error {
	q := s.queue
	q.lock.Lock()
	subs := q.subs[s.pattern]
	for n, sub := range subs {
		if sub == s {
			subs = append(subs[:n], subs[n+1:]...)
			break
		}
	}
	last := len(subs) == 0
	if last {
		delete(q.subs, s.pattern)
	} else {
		q.subs[s.pattern] = subs
	}
	q.lock.Unlock()
	if !last || !q.connected() {
		return nil
	}
	glog.V(2).Infof("UNSUB %q", q.Prefix+s.pattern)
	token := q.Client.Unsubscribe(q.Prefix + s.pattern)
	token.Wait()
	return token.Error()
}

func (q *Queue) connected() bool {
	return q.Client != nil && q.Client.IsConnected()
}

func (q *Queue) onConnect(paho.Client) {
	glog.Info("monitor: connected")
	filters := make(map[string]byte)
	q.lock.RLock()
	for pattern := range q.subs {
		filters[q.Prefix+pattern] = 0
	}
	q.lock.RUnlock()
	if len(filters) > 0 {
		q.Client.SubscribeMultiple(filters, q.dispatch)
	}
}

func (q *Queue) onConnectionLost(_ paho.Client, err error) {
	glog.Warningf("monitor: connection lost: %v", err)
}

func (q *Queue) dispatch(_ paho.Client, msg paho.Message) {
	topic := msg.Topic()
	if !strings.HasPrefix(topic, q.Prefix) {
		return
	}
	topic = topic[len(q.Prefix):]
	glog.V(4).Infof("RCV %q", topic)
	q.deliver(topic, msg.Payload())
}

func (q *Queue) deliver(topic string, payload []byte) {
	var handlers []Handler
	q.lock.RLock()
	for pattern, subs := range q.subs {
		if MatchTopic(topic, pattern) {
			for _, sub := range subs {
				handlers = append(handlers, sub.handler)
			}
		}
	}
	q.lock.RUnlock()
	for _, h := range handlers {
		h(topic, payload)
	}
}
