package pages

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/disconnect/pkg/firmware"
	"github.com/robotalks/disconnect/pkg/flash"
	"github.com/robotalks/disconnect/pkg/flash/sim"
	"github.com/robotalks/disconnect/pkg/loader"
)

var testPart = flash.Part{Name: "AT45DB041", Signature: 0x1c, PageSize: 264, Pages: 2048, PageShift: 9}

func startDevice(t *testing.T, tones bool) (*loader.Client, *sim.Chip, *[]string) {
	chip := sim.New(testPart, sim.Options{BusyPolls: 1})
	hostSide, deviceSide := net.Pipe()
	h := firmware.NewHost(deviceSide, chip, chip, firmware.Config{HZ: 100})
	played := &[]string{}
	if tones {
		for _, tone := range Tones {
			name := tone.Command
			h.Board.Loader.HandleFunc(name, func(w io.Writer, args string) error {
				*played = append(*played, name)
				_, err := io.WriteString(w, loader.ReplyOK+loader.EOL)
				return err
			})
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		hostSide.Close()
		<-done
	})
	c := loader.NewClient(hostSide)
	c.Timeout = 5 * time.Second
	_, err := c.Sync()
	require.NoError(t, err)
	return c, chip, played
}

func TestGeometry(t *testing.T) {
	c, _, _ := startDevice(t, false)
	pages, pageSize := Geometry(c)
	require.Equal(t, 2048, pages)
	require.Equal(t, 264, pageSize)
}

func TestHardwareTest(t *testing.T) {
	c, chip, played := startDevice(t, true)
	pages, pageSize := Geometry(c)
	c.PageSize = pageSize
	var stages []string
	require.NoError(t, HardwareTest(c, pages, func(s string) { stages = append(stages, s) }))
	require.Equal(t, []string{"saw", "zoom", "busy", "ring"}, *played)
	require.Len(t, stages, 6)
	require.Equal(t, 5*time.Second, c.Timeout)
	require.NotEqual(t, make([]byte, 264), chip.Page(2047))
}

func TestHardwareTestMissingTone(t *testing.T) {
	c, _, _ := startDevice(t, false)
	c.PageSize = 264
	err := HardwareTest(c, 2048, nil)
	var remote *loader.RemoteError
	require.True(t, errors.As(err, &remote))
	require.Equal(t, "unknown command: 'saw'", remote.Message)
}
