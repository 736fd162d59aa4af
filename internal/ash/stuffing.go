package ash

func reserved(b byte) bool {
	switch b {
	case Flag, Escape, XON, XOFF, Substitute, Cancel:
		return true
	}
	return false
}

// Stuff escapes every reserved byte in data as Escape, b^0x20.
func Stuff(data []byte) []byte {
	out := make([]byte, 0, len(data)+4)
	for _, b := range data {
		if reserved(b) {
			out = append(out, Escape, b^escapeXOR)
			continue
		}
		out = append(out, b)
	}
	return out
}

// Unstuff reverses Stuff. A trailing escape with nothing after it is dropped.
func Unstuff(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		b := data[i]
		if b == Escape {
			i++
			if i >= len(data) {
				break
			}
			b = data[i] ^ escapeXOR
		}
		out = append(out, b)
	}
	return out
}
