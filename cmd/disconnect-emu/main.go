package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/disconnect/pkg/config"
	"github.com/robotalks/disconnect/pkg/firmware"
	"github.com/robotalks/disconnect/pkg/flash/sim"
	"github.com/robotalks/disconnect/pkg/framework"
	"github.com/robotalks/disconnect/pkg/link"
	"github.com/robotalks/disconnect/pkg/loader"
	"github.com/robotalks/disconnect/pkg/monitor"
)

var (
	listenAddr string
	wsAddr     string
)

// idleSleep stands in for the CPU sleep at the end of each loop iteration.
const idleSleep = time.Millisecond

// tones stand in for the speaker and ring driver of the board.
var tones = []string{"saw", "zoom", "busy", "ring"}

func init() {
	config.SetupFlags()
	flag.StringVar(&listenAddr, "listen", listenAddr, "Serve the device on a TCP address instead of a pseudo terminal.")
	flag.StringVar(&wsAddr, "ws", wsAddr, "Serve the device over websocket on an HTTP address.")
}

type emulator struct {
	conf *config.Config
	chip *sim.Chip
	pub  *monitor.Publisher

	lock sync.Mutex
}

func (e *emulator) boardConfig() firmware.Config {
	bc := firmware.Config{
		HZ:          e.conf.Device.HZ,
		IdleTimeout: e.conf.IdleTimeout(),
		Wait:        e.conf.Waiter(),
		Flash:       e.conf.FlashOptions(),
		Idle:        func() { time.Sleep(idleSleep) },
	}
	if e.pub != nil {
		bc.Observer = e.pub
		bc.OnHeartbeat = func(st firmware.Status) {
			e.pub.Heartbeat(&monitor.Heartbeat{
				Uptime:   uint32(st.Uptime),
				Mode:     st.Mode.String(),
				Commands: uint64(st.Commands),
				Errors:   uint64(st.Errors),
				Dropped:  uint64(st.Dropped),
			})
		}
	}
	return bc
}

// session boots a fresh board on stream. Sessions are serialized, the
// device serves a single client.
func (e *emulator) session(ctx context.Context, stream io.ReadWriteCloser) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	h := firmware.NewHost(stream, e.chip, e.chip, e.boardConfig())
	for _, name := range tones {
		name := name
		h.Board.Loader.HandleFunc(name, func(w io.Writer, args string) error {
			glog.Infof("tone %s", name)
			_, err := io.WriteString(w, loader.ReplyOK+loader.EOL)
			return err
		})
	}
	if e.pub != nil {
		h.Board.Loader.HandleFunc("id", func(w io.Writer, args string) error {
			_, err := io.WriteString(w, e.pub.DeviceID()+loader.EOL)
			return err
		})
	}
	return h.Run(ctx)
}

func (e *emulator) servePTY(ctx context.Context) error {
	pty, err := link.OpenPTY()
	if err != nil {
		return err
	}
	glog.Infof("device on %s", pty.Name)
	return e.session(ctx, pty)
}

func (e *emulator) serveTCP(ctx context.Context) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	glog.Infof("device on tcp://%s", ln.Addr())
	return framework.RunWithContextCloser(ctx, ln, func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			glog.Infof("client %s", conn.RemoteAddr())
			if err := e.session(ctx, conn); err != nil {
				glog.Errorf("session: %v", err)
			}
		}
	})
}

func (e *emulator) serveWebsocket(ctx context.Context) error {
	srv := &http.Server{
		Addr: wsAddr,
		Handler: link.WebsocketHandler(func(stream io.ReadWriteCloser) {
			if err := e.session(ctx, stream); err != nil {
				glog.Errorf("session: %v", err)
			}
		}),
	}
	glog.Infof("device on ws://%s/", wsAddr)
	return framework.RunWithContextCloser(ctx, srv, srv.ListenAndServe)
}

func (e *emulator) loadImage() error {
	fn := e.conf.Device.Image
	if fn == "" {
		return nil
	}
	f, err := os.Open(fn)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = e.chip.ReadFrom(f)
	return err
}

func (e *emulator) saveImage() error {
	fn := e.conf.Device.Image
	if fn == "" {
		return nil
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	if _, err := e.chip.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	flag.Parse()
	conf := config.MustFromFlags()

	e := &emulator{
		conf: conf,
		chip: sim.New(conf.FlashPart(), sim.Options{
			BusyPolls:  conf.Device.BusyPolls,
			ProgramPad: conf.Device.ProgramPad,
		}),
	}
	if err := e.loadImage(); err != nil {
		glog.Exitf("load %s: %v", conf.Device.Image, err)
	}

	var runners []framework.Runnable
	if conf.Monitor.URL != "" {
		q, err := monitor.NewQueueFromURL(conf.Monitor.URL)
		if err != nil {
			glog.Exit(err)
		}
		if err := q.Connect(); err != nil {
			glog.Exitf("monitor: %v", err)
		}
		defer q.Close()
		e.pub = monitor.NewPublisher(q, conf.Monitor.DeviceID, 0)
		runners = append(runners, e.pub)
	}
	switch {
	case listenAddr != "":
		runners = append(runners, framework.NamedRun("tcp", framework.RunFunc(e.serveTCP)))
	case wsAddr != "":
		runners = append(runners, framework.NamedRun("ws", framework.RunFunc(e.serveWebsocket)))
	default:
		runners = append(runners, framework.NamedRun("pty", framework.RunFunc(e.servePTY)))
	}

	err := framework.Run(context.Background(), runners...)
	if err := e.saveImage(); err != nil {
		glog.Errorf("save %s: %v", conf.Device.Image, err)
	}
	if err != nil {
		glog.Exit(err)
	}
}
