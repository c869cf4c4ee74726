package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/disconnect/pkg/crc16"
)

// DefaultPageSize is the page size of the AT45DB642 fitted to the board.
const DefaultPageSize = 1056

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

// Client talks to the loader from the host.
type Client struct {
	// PageSize is the page size of the device flash.
	PageSize int
	// Timeout bounds every reply when the stream supports read deadlines.
	Timeout time.Duration

	rw io.ReadWriter
	r  *bufio.Reader
}

// NewClient creates a Client over a byte stream.
func NewClient(rw io.ReadWriter) *Client {
	return &Client{
		PageSize: DefaultPageSize,
		Timeout:  5 * time.Second,
		rw:       rw,
		r:        bufio.NewReaderSize(rw, DefaultPageSize*2),
	}
}

// Sync terminates any partial line on the device and discards replies
// until the version reply arrives.
func (c *Client) Sync() (string, error) {
	if err := c.send(EOL + "hi" + EOL); err != nil {
		return "", err
	}
	for i := 0; i < 8; i++ {
		line, err := c.readLine()
		if err != nil {
			if _, ok := err.(*RemoteError); ok {
				continue
			}
			return "", err
		}
		if v, ok := parseVersion(line); ok {
			return v, nil
		}
		glog.V(2).Infof("sync: skip %q", line)
	}
	return "", ErrNotLoader
}

// Version sends hi and returns the protocol version.
func (c *Client) Version() (string, error) {
	line, err := c.Command("hi")
	if err != nil {
		return "", err
	}
	if v, ok := parseVersion(line); ok {
		return v, nil
	}
	return "", ErrNotLoader
}

func parseVersion(line string) (string, bool) {
	const prefix = "disconnect "
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return line[len(prefix):], true
}

// ReadPage reads one page and verifies its checksum.
func (c *Client) ReadPage(page int) ([]byte, error) {
	if err := c.expectOK(fmt.Sprintf("read %x", page)); err != nil {
		return nil, err
	}
	data := make([]byte, c.PageSize)
	if _, err := io.ReadFull(c.r, data); err != nil {
		return nil, err
	}
	line, err := c.readLine()
	if err != nil {
		return nil, err
	}
	reported, err := strconv.ParseUint(line, 16, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: crc %q", ErrUnexpectedReply, line)
	}
	if sum := crc16.Checksum(data); sum != uint16(reported) {
		return data, &CRCError{Page: page, Computed: sum, Reported: uint16(reported)}
	}
	return data, nil
}

// WritePage programs page with data, which may be shorter than a page.
func (c *Client) WritePage(page int, data []byte) error {
	if len(data) > c.PageSize {
		return fmt.Errorf("page %d: %d bytes exceed page size", page, len(data))
	}
	cmd := fmt.Sprintf("write %x %x %x"+EOL, page, len(data), crc16.Checksum(data))
	if err := c.send(cmd + string(data)); err != nil {
		return err
	}
	return c.expectReply(ReplyOK)
}

// Go leaves the loader.
func (c *Client) Go() error {
	if err := c.send("go" + EOL); err != nil {
		return err
	}
	return c.expectReply(ReplyGo)
}

// Custom runs an auxiliary command replying ok.
func (c *Client) Custom(cmd string) error {
	return c.expectOK(cmd)
}

// Command sends a command line and returns the first reply line.
func (c *Client) Command(cmd string) (string, error) {
	if err := c.send(cmd + EOL); err != nil {
		return "", err
	}
	return c.readLine()
}

// Flash writes data into consecutive pages starting at start. The last
// page is padded with 0xff, the chip would otherwise program the tail
// from whatever its SRAM buffer held.
func (c *Client) Flash(data []byte, start int, progress func(page, total int)) error {
	total := (len(data) + c.PageSize - 1) / c.PageSize
	for n := 0; n < total; n++ {
		page := data[n*c.PageSize:]
		if len(page) > c.PageSize {
			page = page[:c.PageSize]
		} else if len(page) < c.PageSize {
			page = append(append(make([]byte, 0, c.PageSize), page...),
				bytes.Repeat([]byte{0xff}, c.PageSize-len(page))...)
		}
		if err := c.WritePage(start+n, page); err != nil {
			return fmt.Errorf("page %d: %w", start+n, err)
		}
		if progress != nil {
			progress(n+1, total)
		}
	}
	return nil
}

func (c *Client) expectOK(cmd string) error {
	if err := c.send(cmd + EOL); err != nil {
		return err
	}
	return c.expectReply(ReplyOK)
}

func (c *Client) expectReply(reply string) error {
	line, err := c.readLine()
	if err != nil {
		return err
	}
	if line != reply {
		return fmt.Errorf("%w: %q", ErrUnexpectedReply, line)
	}
	return nil
}

func (c *Client) send(s string) error {
	_, err := io.WriteString(c.rw, s)
	return err
}

func (c *Client) readLine() (string, error) {
	if d, ok := c.rw.(readDeadliner); ok && c.Timeout > 0 {
		d.SetReadDeadline(time.Now().Add(c.Timeout))
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimRight(line, EOL)
	glog.V(4).Infof("reply: %q", line)
	if strings.HasPrefix(line, ErrorPrefix) {
		return line, &RemoteError{Message: line[len(ErrorPrefix):]}
	}
	return line, nil
}
