package firmware

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/disconnect/pkg/flash"
	"github.com/robotalks/disconnect/pkg/flash/sim"
	"github.com/robotalks/disconnect/pkg/loader"
)

type session struct {
	host   *Host
	chip   *sim.Chip
	conn   net.Conn
	cancel func()
	done   chan error
}

func startSession(t *testing.T, chip *sim.Chip, conf Config) *session {
	hostSide, deviceSide := net.Pipe()
	s := &session{chip: chip, conn: hostSide, done: make(chan error, 1)}
	s.host = NewHost(deviceSide, chip, chip, conf)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() { s.done <- s.host.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		hostSide.Close()
	})
	return s
}

func (s *session) stop() error {
	s.cancel()
	s.conn.Close()
	return <-s.done
}

func TestBoardLoaderThenNormal(t *testing.T) {
	chip := sim.New(flash.Parts[0], sim.Options{BusyPolls: 1})
	beats := make(chan Status, 16)
	s := startSession(t, chip, Config{
		HZ:        100,
		Heartbeat: 2,
		OnHeartbeat: func(st Status) {
			select {
			case beats <- st:
			default:
			}
		},
	})
	c := loader.NewClient(s.conn)
	c.Timeout = 5 * time.Second

	v, err := c.Sync()
	require.NoError(t, err)
	require.Equal(t, "v2", v)
	require.NoError(t, c.WritePage(7, []byte("board")))
	require.Equal(t, []byte("board"), chip.Page(7)[:5])

	line, err := c.Command("uptime")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "uptime "), line)
	line, err = c.Command("flash")
	require.NoError(t, err)
	require.Equal(t, "flash AT45DB642D (8192x1056) status bc", line)
	_, err = c.Command("bogus")
	require.Error(t, err)

	require.NoError(t, c.Go())
	r := bufio.NewReader(s.conn)
	for i := 0; i < 2; i++ {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		require.Equal(t, HeartbeatLine+"\r\n", line)
	}
	st := <-beats
	require.Equal(t, ModeNormal, st.Mode)
	require.Equal(t, uint32(6), st.Commands)
	require.Equal(t, uint32(1), st.Errors)

	require.NoError(t, s.stop())
	require.Equal(t, ModeNormal, s.host.Board.Mode())
}

func TestBoardHaltsOnUnknownFlash(t *testing.T) {
	chip := sim.New(flash.Parts[0], sim.Options{})
	chip.SetSignature(0x00)
	s := startSession(t, chip, Config{HZ: 100})
	line, err := bufio.NewReader(s.conn).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "HALT: flash: "), line)

	err = s.stop()
	var unsupported *flash.UnsupportedPartError
	require.True(t, errors.As(err, &unsupported), "%v", err)
	require.Equal(t, ModeHalted, s.host.Board.Mode())
}

func TestModeString(t *testing.T) {
	require.Equal(t, "loader", ModeLoader.String())
	require.Equal(t, "halted", ModeHalted.String())
	require.Equal(t, "mode(9)", Mode(9).String())
}
