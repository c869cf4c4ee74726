// Package pages adds the page level loader commands to the shell.
package pages

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/disconnect/pkg/cli/sh"
	"github.com/robotalks/disconnect/pkg/crc16"
)

type pageResult struct {
	Page  int    `json:"page"`
	Bytes int    `json:"bytes"`
	CRC   string `json:"crc"`
	File  string `json:"file,omitempty"`
}

var (
	// ReadCmd reads a page.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"rd"},
		Help:    "PAGE [FILE]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("PAGE required"))
				return
			}
			page, err := sh.ParsePage(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			data, err := sh.ClientFrom(c).ReadPage(page)
			if err != nil {
				c.Err(err)
				return
			}
			res := pageResult{Page: page, Bytes: len(data), CRC: fmt.Sprintf("%04x", crc16.Checksum(data))}
			if len(c.Args) > 1 {
				res.File = c.Args[1]
				if err := os.WriteFile(res.File, data, 0644); err != nil {
					c.Err(err)
					return
				}
				sh.Output(c, res, fmt.Sprintf("page %x: %d bytes saved to %s", page, len(data), res.File))
				return
			}
			sh.Output(c, res, hex.Dump(data))
		}),
	}

	// WriteCmd programs a page from a file.
	WriteCmd = ishell.Cmd{
		Name:    "write",
		Aliases: []string{"wr"},
		Help:    "PAGE FILE",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("PAGE and FILE required"))
				return
			}
			page, err := sh.ParsePage(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			data, err := os.ReadFile(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			if err := sh.ClientFrom(c).WritePage(page, data); err != nil {
				c.Err(err)
				return
			}
			res := pageResult{Page: page, Bytes: len(data), CRC: fmt.Sprintf("%04x", crc16.Checksum(data)), File: c.Args[1]}
			sh.Output(c, res, fmt.Sprintf("page %x: %d bytes written", page, len(data)))
		}),
	}

	// LoadCmd flashes a file into consecutive pages.
	LoadCmd = ishell.Cmd{
		Name:    "load",
		Aliases: []string{"l"},
		Help:    "FILE [START_PAGE]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("FILE required"))
				return
			}
			var start int
			if len(c.Args) > 1 {
				var err error
				if start, err = sh.ParsePage(c.Args[1]); err != nil {
					c.Err(err)
					return
				}
			}
			data, err := os.ReadFile(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			if err := Load(c, data, start); err != nil {
				c.Err(err)
			}
		}),
	}

	// HWTestCmd runs the hardware test.
	HWTestCmd = ishell.Cmd{
		Name:    "hwtest",
		Aliases: []string{"test"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			client := sh.ClientFrom(c)
			pages, pageSize := Geometry(client)
			client.PageSize = pageSize
			err := HardwareTest(client, pages, func(stage string) {
				if !sh.ShellFrom(c).OutputJSON {
					c.Println(stage)
				}
			})
			if err != nil {
				c.Err(err)
				return
			}
			sh.Output(c, map[string]bool{"passed": true}, "hardware test passed")
		}),
	}
)

// Load flashes data from page start, showing progress.
func Load(c *ishell.Context, data []byte, start int) error {
	s := sh.ShellFrom(c)
	client := sh.ClientFrom(c)
	var progress func(page, total int)
	if s.Interactive && !s.OutputJSON {
		bar := c.ProgressBar()
		bar.Start()
		defer bar.Stop()
		progress = func(page, total int) {
			bar.Suffix(fmt.Sprintf(" %d/%d pages", page, total))
			bar.Progress(page * 100 / total)
		}
	}
	if err := client.Flash(data, start, progress); err != nil {
		return err
	}
	pages := (len(data) + client.PageSize - 1) / client.PageSize
	sh.Output(c, map[string]int{"start": start, "pages": pages, "bytes": len(data)},
		fmt.Sprintf("%d bytes loaded into pages %x-%x", len(data), start, start+pages-1))
	return nil
}

func init() {
	sh.AddCmds(
		&ReadCmd,
		&WriteCmd,
		&LoadCmd,
		&HWTestCmd,
	)
}
