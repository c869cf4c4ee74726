// Package sh is the interactive host shell talking to the loader.
package sh

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/disconnect/pkg/config"
	"github.com/robotalks/disconnect/pkg/link"
	"github.com/robotalks/disconnect/pkg/loader"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *config.Config
	Conn   *Conn
}

// Conn is an open link with a synchronized loader.
type Conn struct {
	Target  string
	Version string
	Client  *loader.Client
	Stream  io.ReadWriteCloser
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	evalOnly   bool
	outputJSON bool

	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&HiCmd,
		&RawCmd,
		&GoCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *config.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Shell:       ishell.New(),
		Config:      conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// ClientFrom gets the loader client of the connected shell.
func ClientFrom(c *ishell.Context) *loader.Client {
	return ShellFrom(c).Conn.Client
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// Output prints v as JSON in JSON mode, otherwise the text.
func Output(c *ishell.Context, v interface{}, text string) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// ParsePage parses a page number, hexadecimal like the loader protocol.
func ParsePage(arg string) (int, error) {
	page, err := strconv.ParseUint(strings.TrimPrefix(arg, "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid page %q", arg)
	}
	return int(page), nil
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect opens target and synchronizes with the loader.
func (s *Shell) Connect(target string) error {
	stream, err := link.Open(target, link.Options{
		Baud:    s.Config.Link.Baud,
		Timeout: s.Config.LinkTimeout(),
	})
	if err != nil {
		return err
	}
	client := loader.NewClient(stream)
	client.Timeout = s.Config.LinkTimeout()
	version, err := client.Sync()
	if err != nil {
		stream.Close()
		return fmt.Errorf("%s: %w", target, err)
	}
	glog.Infof("disconnect %s found on %s", version, target)
	s.Disconnect()
	s.Conn = &Conn{Target: target, Version: version, Client: client, Stream: stream}
	s.Shell.SetPrompt(fmt.Sprintf("[%s %s] > ", version, target))
	return nil
}

// Disconnect closes the current link.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Conn.Stream.Close()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	defer s.Disconnect()
	if s.AutoConnect && s.Config.Link.URL != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.Link.URL)
		}
		if err := s.Connect(s.Config.Link.URL); err != nil {
			glog.Exitf("connect %s failed: %v", s.Config.Link.URL, err)
		}
	}
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			glog.Exit(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Exit("command expected")
}

var (
	// ConnectCmd opens a device link.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[LINK]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			target := s.Config.Link.URL
			if len(c.Args) > 0 {
				target = c.Args[0]
			}
			if err := s.Connect(target); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd closes the device link.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// HiCmd queries the loader version.
	HiCmd = ishell.Cmd{
		Name:    "hi",
		Aliases: []string{"version"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			v, err := ClientFrom(c).Version()
			if err != nil {
				c.Err(err)
				return
			}
			Output(c, map[string]string{"version": v}, "disconnect "+v)
		}),
	}

	// RawCmd sends a command line and prints the first reply line.
	RawCmd = ishell.Cmd{
		Name:    "raw",
		Aliases: []string{"r"},
		Help:    "COMMAND [ARGS...]",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("COMMAND required"))
				return
			}
			line, err := ClientFrom(c).Command(strings.Join(c.Args, " "))
			if err != nil {
				c.Err(err)
				return
			}
			Output(c, map[string]string{"reply": line}, line)
		}),
	}

	// GoCmd leaves the loader.
	GoCmd = ishell.Cmd{
		Name:    "go",
		Aliases: []string{"boot"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			if err := ClientFrom(c).Go(); err != nil {
				c.Err(err)
				return
			}
			Output(c, map[string]string{"mode": "normal"}, loader.ReplyGo)
			ShellFrom(c).Disconnect()
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(config.MustFromFlags()).WithAutoConnect(true).Run(flag.Args()...)
}
