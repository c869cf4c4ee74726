// Package crc16 computes the CRC-16/ARC checksum (reflected polynomial
// 0x8005, zero initial value) used to verify page transfers.
package crc16

import "github.com/snksoft/crc"

var table = crc.NewTable(crc.CRC16)

// Update adds p to a running checksum.
func Update(sum uint16, p []byte) uint16 {
	return table.CRC16(table.UpdateCrc(uint64(sum), p))
}

// UpdateByte adds a single byte to a running checksum.
func UpdateByte(sum uint16, b byte) uint16 {
	return Update(sum, []byte{b})
}

// Checksum returns the checksum of p.
func Checksum(p []byte) uint16 {
	return Update(0, p)
}

// Hash is a running checksum usable as an io.Writer. The zero value is
// ready to use.
type Hash struct {
	h *crc.Hash
}

func (h *Hash) hash() *crc.Hash {
	if h.h == nil {
		h.h = crc.NewHashWithTable(table)
	}
	return h.h
}

// Write implements io.Writer.
func (h *Hash) Write(p []byte) (int, error) {
	h.hash().Update(p)
	return len(p), nil
}

// WriteByte implements io.ByteWriter.
func (h *Hash) WriteByte(b byte) error {
	h.hash().Update([]byte{b})
	return nil
}

// Sum16 returns the checksum so far.
func (h *Hash) Sum16() uint16 {
	return h.hash().CRC16()
}

// Reset restarts the checksum.
func (h *Hash) Reset() {
	h.hash().Reset()
}
