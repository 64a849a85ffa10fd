package qhash

// SplitNibbles expands every byte into its high and low nibble, high first.
func SplitNibbles(data []byte) []byte {
	out := make([]byte, 2*len(data))
	for i, b := range data {
		out[2*i] = b >> 4
		out[2*i+1] = b & 0x0F
	}
	return out
}
