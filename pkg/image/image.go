// Package image lays out audio samples as a flash content image: a header
// page describing every sample followed by the samples themselves, each
// starting on a page boundary.
package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/robotalks/disconnect/pkg/crc16"
)

// Signature starts the header page.
const Signature = "v1\r\n"

const (
	countSize      = 3
	descriptorSize = 8
	// MaxSamples is the largest sample count the header records.
	MaxSamples = 255
)

// Header errors.
var (
	ErrInvalidSignature = errors.New("invalid image signature")
	ErrInvalidCRC       = errors.New("invalid descriptor checksum")
	ErrInvalidLength    = errors.New("truncated header")
	ErrTooManySamples   = errors.New("too many samples")
)

// Role tells the player how a sample is used.
type Role uint8

// Sample roles.
const (
	RoleFree Role = iota
	RoleMusic
)

var roleNames = map[string]Role{
	"free":  RoleFree,
	"music": RoleMusic,
}

// ParseRole parses a role name.
func ParseRole(name string) (Role, error) {
	if r, ok := roleNames[strings.ToLower(name)]; ok {
		return r, nil
	}
	return 0, fmt.Errorf("unknown role %q", name)
}

func (r Role) String() string {
	for name, v := range roleNames {
		if v == r {
			return name
		}
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// Sample is an 8-bit mono sample to store.
type Sample struct {
	Role   Role
	Weight uint8
	Data   []byte
}

// Descriptor locates a stored sample.
type Descriptor struct {
	Role   Role
	Weight uint8
	// Page is the first page of the sample.
	Page uint16
	// Pages is the number of full pages.
	Pages uint16
	// Odd is the number of bytes in the last partial page.
	Odd uint16
}

// Len returns the sample length in bytes.
func (d Descriptor) Len(pageSize int) int {
	return int(d.Pages)*pageSize + int(d.Odd)
}

// span is the number of pages a sample of n bytes occupies. The last page
// always carries at least one padding byte.
func span(n, pageSize int) int {
	return n/pageSize + 1
}

func pad(buf *bytes.Buffer, pageSize int) {
	for n := pageSize - buf.Len()%pageSize; n > 0; n-- {
		buf.WriteByte(0xff)
	}
}

// Build lays out samples for a flash with pageSize byte pages. The image
// starts at page 0.
func Build(pageSize int, samples []Sample) ([]byte, []Descriptor, error) {
	if len(samples) > MaxSamples {
		return nil, nil, ErrTooManySamples
	}
	if len(Signature)+countSize+len(samples)*descriptorSize >= pageSize {
		return nil, nil, fmt.Errorf("%d samples do not fit in the header page", len(samples))
	}
	var descr bytes.Buffer
	descriptors := make([]Descriptor, 0, len(samples))
	page := 1
	for n, s := range samples {
		d := Descriptor{
			Role:   s.Role,
			Weight: s.Weight,
			Page:   uint16(page),
			Pages:  uint16(len(s.Data) / pageSize),
			Odd:    uint16(len(s.Data) % pageSize),
		}
		page += span(len(s.Data), pageSize)
		if page > 0xffff {
			return nil, nil, fmt.Errorf("sample %d: image exceeds %d pages", n, 0xffff)
		}
		binary.Write(&descr, binary.LittleEndian, &d)
		descriptors = append(descriptors, d)
	}

	var out bytes.Buffer
	out.WriteString(Signature)
	out.WriteByte(byte(len(samples)))
	binary.Write(&out, binary.LittleEndian, crc16.Checksum(descr.Bytes()))
	out.Write(descr.Bytes())
	pad(&out, pageSize)
	for _, s := range samples {
		out.Write(s.Data)
		pad(&out, pageSize)
	}
	return out.Bytes(), descriptors, nil
}

// ParseHeader decodes the header page.
func ParseHeader(page []byte) ([]Descriptor, error) {
	if !bytes.HasPrefix(page, []byte(Signature)) {
		return nil, ErrInvalidSignature
	}
	p := page[len(Signature):]
	if len(p) < countSize {
		return nil, ErrInvalidLength
	}
	count := int(p[0])
	sum := binary.LittleEndian.Uint16(p[1:])
	p = p[countSize:]
	if len(p) < count*descriptorSize {
		return nil, ErrInvalidLength
	}
	p = p[:count*descriptorSize]
	if crc16.Checksum(p) != sum {
		return nil, ErrInvalidCRC
	}
	descriptors := make([]Descriptor, count)
	if err := binary.Read(bytes.NewReader(p), binary.LittleEndian, descriptors); err != nil {
		return nil, err
	}
	return descriptors, nil
}
