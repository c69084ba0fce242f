package wasm

// AppendUleb128 appends v as an unsigned LEB128.
func AppendUleb128(buf []byte, v uint32) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v&0x7F)|0x80)
		v >>= 7
	}
	return append(buf, byte(v&0x7F))
}

// AppendSleb128 appends v as a signed LEB128.
func AppendSleb128(buf []byte, v int64) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// AppendPaddedSleb32 appends v as a signed LEB128 that always occupies
// five bytes. Decoders accept the redundant continuation bytes, so the
// encoded size of an instruction no longer depends on its value.
func AppendPaddedSleb32(buf []byte, v int32) []byte {
	x := int64(v)
	for i := 0; i < 4; i++ {
		buf = append(buf, byte(x&0x7F)|0x80)
		x >>= 7
	}
	return append(buf, byte(x&0x7F))
}
