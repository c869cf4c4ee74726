package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/physic"

	"github.com/robotalks/disconnect/pkg/config"
	"github.com/robotalks/disconnect/pkg/flash"
	"github.com/robotalks/disconnect/pkg/hal/periph"
)

var (
	spiPort    string
	chipSelect = "GPIO8"
	speedHz    = int64(4000000)
)

func init() {
	config.SetupFlags()
	flag.StringVar(&spiPort, "spi", spiPort, "SPI port name, empty for the first one.")
	flag.StringVar(&chipSelect, "cs", chipSelect, "GPIO driven as chip select.")
	flag.Int64Var(&speedHz, "speed", speedHz, "SPI clock in Hz.")
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] COMMAND
Commands:
  info                 print the detected part
  read PAGE [FILE]     dump a page or save it to FILE
  write PAGE FILE      program a page from FILE
  load FILE [START]    program FILE from page START (hex, default 0)
  dump FILE            save the whole chip to FILE
`, os.Args[0])
	flag.PrintDefaults()
}

func parsePage(arg string) int {
	n, err := strconv.ParseUint(arg, 16, 16)
	if err != nil {
		glog.Exitf("invalid page %q: %v", arg, err)
	}
	return int(n)
}

func readFile(fn string) []byte {
	data, err := os.ReadFile(fn)
	if err != nil {
		glog.Exit(err)
	}
	return data
}

// padded returns data filled up to size with erased bytes.
func padded(data []byte, size int) []byte {
	page := make([]byte, size)
	for i := copy(page, data); i < size; i++ {
		page[i] = 0xff
	}
	return page
}

func load(dev *flash.Device, data []byte, start int) error {
	size := dev.PageSize()
	total := (len(data) + size - 1) / size
	if start+total > dev.Pages() {
		return fmt.Errorf("%d pages from %x exceeds %d pages", total, start, dev.Pages())
	}
	for n := 0; n < total; n++ {
		end := (n + 1) * size
		if end > len(data) {
			end = len(data)
		}
		if err := dev.WritePage(start+n, padded(data[n*size:end], size)); err != nil {
			return fmt.Errorf("page %x: %w", start+n, err)
		}
		glog.V(2).Infof("page %x written", start+n)
	}
	fmt.Printf("%d pages written\n", total)
	return nil
}

func dump(dev *flash.Device, fn string) error {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	buf := make([]byte, dev.PageSize())
	for n := 0; n < dev.Pages(); n++ {
		if err = dev.ReadPage(n, buf); err != nil {
			break
		}
		if _, err = f.Write(buf); err != nil {
			break
		}
	}
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func run(dev *flash.Device, args []string) error {
	switch args[0] {
	case "info":
		st, err := dev.Status()
		if err != nil {
			return err
		}
		fmt.Printf("%s status %02x\n", dev.Part(), st)
	case "read":
		if len(args) < 2 {
			return fmt.Errorf("read PAGE [FILE]")
		}
		buf := make([]byte, dev.PageSize())
		if err := dev.ReadPage(parsePage(args[1]), buf); err != nil {
			return err
		}
		if len(args) > 2 {
			return os.WriteFile(args[2], buf, 0644)
		}
		fmt.Print(hex.Dump(buf))
	case "write":
		if len(args) < 3 {
			return fmt.Errorf("write PAGE FILE")
		}
		data := readFile(args[2])
		if len(data) > dev.PageSize() {
			return fmt.Errorf("%s: %d bytes exceeds page size %d", args[2], len(data), dev.PageSize())
		}
		return dev.WritePage(parsePage(args[1]), padded(data, dev.PageSize()))
	case "load":
		if len(args) < 2 {
			return fmt.Errorf("load FILE [START]")
		}
		start := 0
		if len(args) > 2 {
			start = parsePage(args[2])
		}
		return load(dev, readFile(args[1]), start)
	case "dump":
		if len(args) < 2 {
			return fmt.Errorf("dump FILE")
		}
		return dump(dev, args[1])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	conf := config.MustFromFlags()

	bus, err := periph.Open(periph.Config{
		Port:       spiPort,
		ChipSelect: chipSelect,
		Speed:      physic.Frequency(speedHz) * physic.Hertz,
	})
	if err != nil {
		glog.Exit(err)
	}
	defer bus.Close()

	dev := flash.New(bus, bus, conf.FlashOptions())
	if err := dev.Init(); err != nil {
		glog.Exitf("flash: %v", err)
	}
	defer dev.Close()
	glog.Infof("detected %s", dev.Part())

	if err := run(dev, flag.Args()); err != nil {
		glog.Errorf("%s: %v", flag.Arg(0), err)
		glog.Flush()
		os.Exit(1)
	}
}
