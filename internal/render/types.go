package render

// RGB is one LED colour, one byte per channel.
type RGB struct{ R, G, B uint8 }

// Buffer is an ordered run of LED colours, index 0 being the LED closest to the controller.
type Buffer []RGB

// Bytes flattens the buffer into R,G,B triples in LED order.
func (b Buffer) Bytes() []byte {
	out := make([]byte, 0, len(b)*3)
	for _, c := range b {
		out = append(out, c.R, c.G, c.B)
	}
	return out
}

// Clone returns a copy that shares no memory with b.
func (b Buffer) Clone() Buffer {
	out := make(Buffer, len(b))
	copy(out, b)
	return out
}

// FromBytes builds a buffer from R,G,B triples. A trailing partial triple is ignored.
func FromBytes(rgb []byte) Buffer {
	n := len(rgb) / 3
	out := make(Buffer, n)
	for i := 0; i < n; i++ {
		out[i] = RGB{rgb[i*3+0], rgb[i*3+1], rgb[i*3+2]}
	}
	return out
}

// Fill sets every LED of dst to c.
func Fill(dst Buffer, c RGB) {
	for i := range dst {
		dst[i] = c
	}
}
