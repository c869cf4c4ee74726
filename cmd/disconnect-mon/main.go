package main

import (
	"flag"
	"log"
	"reflect"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/disconnect/pkg/config"
	"github.com/robotalks/disconnect/pkg/monitor"
)

var pattern = "#"

func init() {
	config.SetupFlags()
	flag.StringVar(&pattern, "topic", pattern, "Topic filter below the prefix, e.g. +/command.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	conf := config.MustFromFlags()
	if conf.Monitor.URL == "" {
		log.Fatalln("monitor URL required (-monitor or DISCONNECT_MONITOR_URL)")
	}
	q, err := monitor.NewQueueFromURL(conf.Monitor.URL)
	if err != nil {
		log.Fatalln(err)
	}
	q.Subscribe(pattern, func(topic string, payload []byte) {
		msg, err := monitor.Decode(topic, payload)
		if err != nil {
			log.Printf("%s: %v", topic, err)
			return
		}
		log.Printf("%s: [%s] %s", topic,
			reflect.Indirect(reflect.ValueOf(msg)).Type().Name(),
			proto.CompactTextString(msg))
	})
	if err := q.Connect(); err != nil {
		log.Fatalln(err)
	}
	<-(chan struct{})(nil)
}
