package ash

// Checksum computes the CRC-CCITT (initial value 0xFFFF) used by ASH over
// unstuffed frame bytes.
func Checksum(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		x := uint16((crc>>8)^uint16(b)) & 0xFF
		x ^= x >> 4
		crc = (crc << 8) ^ (x << 12) ^ (x << 5) ^ x
	}
	return crc
}
