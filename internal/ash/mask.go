package ash

const maskSeed byte = 0x42

func nextMask(v byte) byte {
	if v&0x01 == 0 {
		return v >> 1
	}
	return (v >> 1) ^ 0xB8
}

// Mask XORs payload against the pseudo-random sequence that starts at 0x42.
// The generator restarts for every call, so Mask(Mask(p)) == p.
func Mask(payload []byte) []byte {
	out := make([]byte, len(payload))
	v := maskSeed
	for i, b := range payload {
		out[i] = b ^ v
		v = nextMask(v)
	}
	return out
}
