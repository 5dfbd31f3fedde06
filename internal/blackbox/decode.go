package blackbox

// Sign-extension helpers. Each takes the raw n-bit unsigned value and
// widens it to a full 32-bit signed integer when its sign bit is set.

func signExtend2Bit(v uint32) int32 {
	if v&0x02 != 0 {
		return int32(v | 0xFFFFFFFC)
	}
	return int32(v)
}

func signExtend4Bit(v uint32) int32 {
	if v&0x08 != 0 {
		return int32(v | 0xFFFFFFF0)
	}
	return int32(v)
}

func signExtend6Bit(v uint32) int32 {
	if v&0x20 != 0 {
		return int32(v | 0xFFFFFFC0)
	}
	return int32(v)
}

func signExtend8Bit(v uint32) int32 {
	if v&0x80 != 0 {
		return int32(v | 0xFFFFFF00)
	}
	return int32(v)
}

func signExtend14Bit(v uint32) int32 {
	if v&0x2000 != 0 {
		return int32(v | 0xFFFFC000)
	}
	return int32(v)
}

func signExtend16Bit(v uint32) int32 {
	if v&0x8000 != 0 {
		return int32(v | 0xFFFF0000)
	}
	return int32(v)
}

func signExtend24Bit(v uint32) int32 {
	if v&0x800000 != 0 {
		return int32(v | 0xFF000000)
	}
	return int32(v)
}

// decodeUnsignedVB reads a 7-bit-per-byte, LSB-first variable-byte integer.
// A run longer than 5 bytes is malformed.
func decodeUnsignedVB(b *bitstream) (uint32, error) {
	var result uint32
	var shift uint
	for i := 0; i < 5; i++ {
		raw, err := b.readU8()
		if err != nil {
			return 0, err
		}
		result |= uint32(raw&0x7F) << shift
		if raw < 0x80 {
			return result, nil
		}
		shift += 7
	}
	return 0, &encodingError{offset: b.tell(), detail: "unsigned varint longer than 5 bytes"}
}

// decodeSignedVB reads an unsigned varint and zig-zag decodes it.
func decodeSignedVB(b *bitstream) (int32, error) {
	u, err := decodeUnsignedVB(b)
	if err != nil {
		return 0, err
	}
	return int32((u >> 1) ^ -(u & 1)), nil
}

// decodeNeg14Bit reads an unsigned varint, truncates it to 14 bits, sign
// extends, and negates.
func decodeNeg14Bit(b *bitstream) (int32, error) {
	u, err := decodeUnsignedVB(b)
	if err != nil {
		return 0, err
	}
	return -signExtend14Bit(u & 0x3FFF), nil
}

// decodeTag8_8SVB decodes a run of up to 8 adjacent SIGNED_VB fields that
// share one selector byte: group_count is the number of consecutive
// fields (from the current field index to the end of the frame or the
// next field using a different encoding) this call must produce. When
// group_count is 1 the selector byte is skipped and a single SIGNED_VB is
// read directly, matching the reference decoder's single-field shortcut.
func decodeTag8_8SVB(b *bitstream, groupCount int) ([]int32, error) {
	if groupCount <= 1 {
		v, err := decodeSignedVB(b)
		if err != nil {
			return nil, err
		}
		return []int32{v}, nil
	}
	header, err := b.readU8()
	if err != nil {
		return nil, err
	}
	values := make([]int32, groupCount)
	for i := 0; i < groupCount; i++ {
		if header&0x01 != 0 {
			v, err := decodeSignedVB(b)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		header >>= 1
	}
	return values, nil
}

// decodeTag2_3S32 decodes three values packed with a 2-bit width selector
// in the top bits of the first byte: 00->2 bits, 01->4 bits, 10->6 bits
// (all sign-extended), 11->per-value 8/16/24/32-bit fields chosen by a
// trailing 2-bit selector per value.
func decodeTag2_3S32(b *bitstream) ([3]int32, error) {
	var out [3]int32
	lead, err := b.readU8()
	if err != nil {
		return out, err
	}
	switch lead >> 6 {
	case 0:
		out[0] = signExtend2Bit(uint32(lead>>4) & 0x03)
		out[1] = signExtend2Bit(uint32(lead>>2) & 0x03)
		out[2] = signExtend2Bit(uint32(lead) & 0x03)
		return out, nil
	case 1:
		out[0] = signExtend4Bit(uint32(lead) & 0x0F)
		lead, err = b.readU8()
		if err != nil {
			return out, err
		}
		out[1] = signExtend4Bit(uint32(lead>>4) & 0x0F)
		out[2] = signExtend4Bit(uint32(lead) & 0x0F)
		return out, nil
	case 2:
		out[0] = signExtend6Bit(uint32(lead) & 0x3F)
		lead, err = b.readU8()
		if err != nil {
			return out, err
		}
		out[1] = signExtend6Bit(uint32(lead) & 0x3F)
		lead, err = b.readU8()
		if err != nil {
			return out, err
		}
		out[2] = signExtend6Bit(uint32(lead) & 0x3F)
		return out, nil
	default:
		sel := lead
		for i := 0; i < 3; i++ {
			switch sel & 0x03 {
			case 0:
				v1, err := b.readU8()
				if err != nil {
					return out, err
				}
				out[i] = signExtend8Bit(uint32(v1))
			case 1:
				v1, err := b.readU8()
				if err != nil {
					return out, err
				}
				v2, err := b.readU8()
				if err != nil {
					return out, err
				}
				out[i] = signExtend16Bit(uint32(v1) | uint32(v2)<<8)
			case 2:
				v1, err := b.readU8()
				if err != nil {
					return out, err
				}
				v2, err := b.readU8()
				if err != nil {
					return out, err
				}
				v3, err := b.readU8()
				if err != nil {
					return out, err
				}
				out[i] = signExtend24Bit(uint32(v1) | uint32(v2)<<8 | uint32(v3)<<16)
			case 3:
				v1, err := b.readU8()
				if err != nil {
					return out, err
				}
				v2, err := b.readU8()
				if err != nil {
					return out, err
				}
				v3, err := b.readU8()
				if err != nil {
					return out, err
				}
				v4, err := b.readU8()
				if err != nil {
					return out, err
				}
				out[i] = int32(uint32(v1) | uint32(v2)<<8 | uint32(v3)<<16 | uint32(v4)<<24)
			}
			sel >>= 2
		}
		return out, nil
	}
}

// decodeTag8_4S16V1 is the pre-"Data version 2" layout of TAG8_4S16. The
// reference decoder never implemented it either; logs prior to firmware
// generation 2 are rare enough in the wild that nobody has filed the wire
// layout for it.
func decodeTag8_4S16V1(b *bitstream) ([4]int32, error) {
	var out [4]int32
	return out, &encodingError{offset: b.tell(), detail: "TAG8_4S16 v1 layout not implemented"}
}

// decodeTag8_4S16V2 decodes four values from a selector byte whose 2-bit
// groups choose 0/4/8/16-bit width per value; 4-bit and continuation
// 8/16-bit values share nibbles across adjacent fields via a one-nibble
// lookahead buffer.
func decodeTag8_4S16V2(b *bitstream) ([4]int32, error) {
	var out [4]int32
	selector, err := b.readU8()
	if err != nil {
		return out, err
	}
	nibbleIndex := 0
	var buffer byte
	for i := 0; i < 4; i++ {
		switch selector & 0x03 {
		case 0:
			out[i] = 0
		case 1:
			if nibbleIndex == 0 {
				buffer, err = b.readU8()
				if err != nil {
					return out, err
				}
				out[i] = signExtend4Bit(uint32(buffer >> 4))
				nibbleIndex = 1
			} else {
				out[i] = signExtend4Bit(uint32(buffer & 0x0F))
				nibbleIndex = 0
			}
		case 2:
			if nibbleIndex == 0 {
				v1, err := b.readU8()
				if err != nil {
					return out, err
				}
				out[i] = signExtend8Bit(uint32(v1))
			} else {
				v1 := (buffer & 0x0F) << 4
				buffer, err = b.readU8()
				if err != nil {
					return out, err
				}
				v1 |= buffer >> 4
				out[i] = signExtend8Bit(uint32(v1))
			}
		case 3:
			if nibbleIndex == 0 {
				v1, err := b.readU8()
				if err != nil {
					return out, err
				}
				v2, err := b.readU8()
				if err != nil {
					return out, err
				}
				out[i] = signExtend16Bit(uint32(v1)<<8 | uint32(v2))
			} else {
				v1, err := b.readU8()
				if err != nil {
					return out, err
				}
				v2, err := b.readU8()
				if err != nil {
					return out, err
				}
				out[i] = signExtend16Bit(uint32(buffer&0x0F)<<12 | uint32(v1)<<4 | uint32(v2)>>4)
				buffer = v2
			}
		}
		selector >>= 2
	}
	return out, nil
}
