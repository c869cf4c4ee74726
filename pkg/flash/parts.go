package flash

import "fmt"

// Part describes an AT45 DataFlash density.
type Part struct {
	Name string
	// Signature is the density code in the status register (status & 0x3c).
	Signature byte
	PageSize  int
	Pages     int
	// PageShift is the number of byte address bits below the page index.
	PageShift uint
}

// Size returns the capacity in bytes.
func (p Part) Size() int {
	return p.PageSize * p.Pages
}

// Address returns the 24-bit command address of byte offset in page.
func (p Part) Address(page, offset int) uint32 {
	return uint32(page)<<p.PageShift | uint32(offset)
}

func (p Part) String() string {
	return fmt.Sprintf("%s (%dx%d)", p.Name, p.Pages, p.PageSize)
}

const densityMask = 0x3c

// Parts lists the supported chips.
var Parts = []Part{
	{Name: "AT45DB642D", Signature: 0x3c, PageSize: 1056, Pages: 8192, PageShift: 11},
	{Name: "AT45DB642", Signature: 0x38, PageSize: 1056, Pages: 8192, PageShift: 11},
	{Name: "AT45DB321", Signature: 0x34, PageSize: 528, Pages: 8192, PageShift: 10},
	{Name: "AT45DB161", Signature: 0x2c, PageSize: 528, Pages: 4096, PageShift: 10},
	{Name: "AT45DB081", Signature: 0x24, PageSize: 264, Pages: 4096, PageShift: 9},
	{Name: "AT45DB041", Signature: 0x1c, PageSize: 264, Pages: 2048, PageShift: 9},
}

// LookupPart finds the part reporting status.
func LookupPart(status byte) (Part, bool) {
	return findPart(Parts, status)
}

func findPart(parts []Part, status byte) (Part, bool) {
	for _, p := range parts {
		if p.Signature == status&densityMask {
			return p, true
		}
	}
	return Part{}, false
}

// PartByName finds a part by name.
func PartByName(name string) (Part, bool) {
	for _, p := range Parts {
		if p.Name == name {
			return p, true
		}
	}
	return Part{}, false
}
