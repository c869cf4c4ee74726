package crc16

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		in     string
		expect uint16
	}{
		{"", 0},
		{"123456789", 0xbb3d},
		{"A", 0x30c0},
	}
	for _, test := range tests {
		require.Equalf(t, test.expect, Checksum([]byte(test.in)), "checksum of %q mismatch", test.in)
	}
}

func TestIncremental(t *testing.T) {
	data := []byte("the quick brown fox")
	var sum uint16
	for _, b := range data {
		sum = UpdateByte(sum, b)
	}
	require.Equal(t, Checksum(data), sum)
	require.Equal(t, Checksum(data), Update(Update(0, data[:7]), data[7:]))

	var h Hash
	h.Write(data[:3])
	for _, b := range data[3:] {
		h.WriteByte(b)
	}
	require.Equal(t, sum, h.Sum16())
	h.Reset()
	require.EqualValues(t, 0, h.Sum16())
}

func TestErasedPage(t *testing.T) {
	page := make([]byte, 1056)
	for i := range page {
		page[i] = 0xff
	}
	var h Hash
	h.Write(page)
	require.Equal(t, Checksum(page), h.Sum16())
	require.NotZero(t, h.Sum16())
}
