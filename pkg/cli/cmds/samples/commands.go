// Package samples adds commands building and inspecting sample images.
package samples

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/disconnect/pkg/cli/cmds/pages"
	"github.com/robotalks/disconnect/pkg/cli/sh"
	"github.com/robotalks/disconnect/pkg/image"
	"github.com/robotalks/disconnect/pkg/loader"
)

// ParseSpec parses ROLE:WEIGHT:FILE.
func ParseSpec(spec string) (image.Role, uint8, string, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return 0, 0, "", fmt.Errorf("sample %q: expect ROLE:WEIGHT:FILE", spec)
	}
	role, err := image.ParseRole(parts[0])
	if err != nil {
		return 0, 0, "", err
	}
	weight, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return 0, 0, "", fmt.Errorf("sample %q: invalid weight", spec)
	}
	return role, uint8(weight), parts[2], nil
}

// LoadSamples reads the WAV files named by specs.
func LoadSamples(specs []string) ([]image.Sample, error) {
	samples := make([]image.Sample, 0, len(specs))
	for _, spec := range specs {
		role, weight, fn, err := ParseSpec(spec)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		data, err := image.LoadWAV(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		samples = append(samples, image.Sample{Role: role, Weight: weight, Data: data})
	}
	return samples, nil
}

// Describe formats descriptors for display.
func Describe(descriptors []image.Descriptor, pageSize int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d samples\n", len(descriptors))
	for n, d := range descriptors {
		fmt.Fprintf(&b, "%3d: %-5s weight %3d page %04x bytes %d\n",
			n, d.Role, d.Weight, d.Page, d.Len(pageSize))
	}
	return b.String()
}

func buildFromArgs(args []string) ([]byte, []image.Descriptor, error) {
	samples, err := LoadSamples(args)
	if err != nil {
		return nil, nil, err
	}
	return image.Build(loader.DefaultPageSize, samples)
}

var (
	// BuildCmd writes an image file.
	BuildCmd = ishell.Cmd{
		Name:    "image.build",
		Aliases: []string{"imgb"},
		Help:    "OUTPUT ROLE:WEIGHT:FILE.wav...",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("OUTPUT and samples required"))
				return
			}
			data, descriptors, err := buildFromArgs(c.Args[1:])
			if err != nil {
				c.Err(err)
				return
			}
			if err := os.WriteFile(c.Args[0], data, 0644); err != nil {
				c.Err(err)
				return
			}
			sh.Output(c, descriptors, Describe(descriptors, loader.DefaultPageSize))
		},
	}

	// InfoCmd shows the header of an image file, or of the device flash
	// without arguments.
	InfoCmd = ishell.Cmd{
		Name:    "image.info",
		Aliases: []string{"imgi"},
		Help:    "[FILE]",
		Func: func(c *ishell.Context) {
			var header []byte
			pageSize := loader.DefaultPageSize
			if len(c.Args) > 0 {
				data, err := os.ReadFile(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				header = data
			} else {
				if sh.ShellFrom(c).Conn == nil {
					c.Err(fmt.Errorf("not connected"))
					return
				}
				client := sh.ClientFrom(c)
				page, err := client.ReadPage(0)
				if err != nil {
					c.Err(err)
					return
				}
				header, pageSize = page, client.PageSize
			}
			descriptors, err := image.ParseHeader(header)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Output(c, descriptors, Describe(descriptors, pageSize))
		},
	}

	// FlashCmd builds an image and loads it from page 0.
	FlashCmd = ishell.Cmd{
		Name:    "image.flash",
		Aliases: []string{"imgf"},
		Help:    "ROLE:WEIGHT:FILE.wav...",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("samples required"))
				return
			}
			data, _, err := buildFromArgs(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err := pages.Load(c, data, 0); err != nil {
				c.Err(err)
			}
		}),
	}
)

func init() {
	sh.AddCmds(
		&BuildCmd,
		&InfoCmd,
		&FlashCmd,
	)
}
