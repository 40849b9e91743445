// Package oscwire implements a byte-exact OSC 1.0 binary codec for a single
// message: address, type-tag string, and arguments, all 4-byte aligned.
package oscwire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

// Timetag is an OSC time tag: seconds since 1900-01-01 plus a fractional
// part, each a 32-bit field.
type Timetag struct {
	Seconds  uint32
	Fraction uint32
}

// RGBA is an OSC 'r' argument: four unsigned byte components.
type RGBA struct{ R, G, B, A uint8 }

// MIDI is an OSC 'm' argument: a 4-byte MIDI message.
type MIDI struct{ Port, Status, Data1, Data2 uint8 }

// Message is a decoded or to-be-encoded OSC message.
type Message struct {
	Path string
	Args []any
}

// ErrMalformed is returned by Decode when a buffer cannot yield even an
// address (the only failure Decode reports; truncated arguments instead
// return the successfully decoded prefix).
var ErrMalformed = errors.New("oscwire: malformed OSC packet")

func align4(n int) int {
	if r := n % 4; r != 0 {
		return n + (4 - r)
	}
	return n
}

// Decode parses a single OSC message from b. Truncation mid-arguments stops
// parsing and returns the arguments successfully decoded so far, not an
// error; only a buffer that cannot produce an address fails outright.
func Decode(b []byte) (Message, error) {
	if len(b) < 4 {
		return Message{}, ErrMalformed
	}

	nul := bytes.IndexByte(b, 0)
	if nul < 0 {
		return Message{}, ErrMalformed
	}
	msg := Message{Path: string(b[:nul])}
	cursor := align4(nul + 1)

	if cursor >= len(b) || b[cursor] != ',' {
		return msg, nil
	}

	tagNul := bytes.IndexByte(b[cursor:], 0)
	if tagNul < 0 {
		return msg, nil
	}
	tags := b[cursor+1 : cursor+tagNul] // drop the leading ','
	cursor = align4(cursor + tagNul + 1)

	for _, tag := range tags {
		switch tag {
		case 'i':
			if cursor+4 > len(b) {
				return msg, nil
			}
			msg.Args = append(msg.Args, int32(binary.BigEndian.Uint32(b[cursor:cursor+4])))
			cursor += 4
		case 'f':
			if cursor+4 > len(b) {
				return msg, nil
			}
			msg.Args = append(msg.Args, math.Float32frombits(binary.BigEndian.Uint32(b[cursor:cursor+4])))
			cursor += 4
		case 's', 'S':
			sn := bytes.IndexByte(b[cursor:], 0)
			if sn < 0 {
				return msg, nil
			}
			next := align4(cursor + sn + 1)
			if next > len(b) {
				return msg, nil
			}
			msg.Args = append(msg.Args, string(b[cursor:cursor+sn]))
			cursor = next
		case 'b':
			if cursor+4 > len(b) {
				return msg, nil
			}
			n := int(int32(binary.BigEndian.Uint32(b[cursor : cursor+4])))
			cursor += 4
			if n < 0 || cursor+n > len(b) {
				return msg, nil
			}
			data := append([]byte(nil), b[cursor:cursor+n]...)
			msg.Args = append(msg.Args, data)
			cursor = align4(cursor + n)
		case 'h':
			if cursor+8 > len(b) {
				return msg, nil
			}
			msg.Args = append(msg.Args, int64(binary.BigEndian.Uint64(b[cursor:cursor+8])))
			cursor += 8
		case 't':
			if cursor+8 > len(b) {
				return msg, nil
			}
			msg.Args = append(msg.Args, Timetag{
				Seconds:  binary.BigEndian.Uint32(b[cursor : cursor+4]),
				Fraction: binary.BigEndian.Uint32(b[cursor+4 : cursor+8]),
			})
			cursor += 8
		case 'd':
			if cursor+8 > len(b) {
				return msg, nil
			}
			msg.Args = append(msg.Args, math.Float64frombits(binary.BigEndian.Uint64(b[cursor:cursor+8])))
			cursor += 8
		case 'c':
			if cursor+4 > len(b) {
				return msg, nil
			}
			msg.Args = append(msg.Args, rune(binary.BigEndian.Uint32(b[cursor:cursor+4])))
			cursor += 4
		case 'r':
			if cursor+4 > len(b) {
				return msg, nil
			}
			msg.Args = append(msg.Args, RGBA{b[cursor], b[cursor+1], b[cursor+2], b[cursor+3]})
			cursor += 4
		case 'm':
			if cursor+4 > len(b) {
				return msg, nil
			}
			msg.Args = append(msg.Args, MIDI{b[cursor], b[cursor+1], b[cursor+2], b[cursor+3]})
			cursor += 4
		case 'T':
			msg.Args = append(msg.Args, true)
		case 'F':
			msg.Args = append(msg.Args, false)
		case 'N':
			msg.Args = append(msg.Args, nil)
		case 'I':
			msg.Args = append(msg.Args, math.Inf(1))
		case '[', ']':
			// Array brackets are recognized but produce no argument in
			// this revision (documented limitation, spec §4.C/§9).
		default:
			// Unknown tag: skipped with no cursor advance.
		}
	}

	return msg, nil
}

func writePaddedString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

func writeBlob(buf *bytes.Buffer, data []byte) {
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(data)))
	buf.Write(size[:])
	buf.Write(data)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

// asNumeric reports whether a holds a Go numeric kind, returning its value
// as a float64 for classification against the INT/FLOAT encoding rule.
func asNumeric(a any) (float64, bool) {
	switch v := a.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// Encode serializes msg into a single OSC message buffer. It never fails;
// an argument of an unsupported Go type is silently skipped (§4.C/§7).
func Encode(msg Message) []byte {
	var buf bytes.Buffer
	writePaddedString(&buf, msg.Path)

	tags := []byte{','}
	var payload bytes.Buffer

	for _, a := range msg.Args {
		switch v := a.(type) {
		case nil:
			tags = append(tags, 'N')
		case bool:
			if v {
				tags = append(tags, 'T')
			} else {
				tags = append(tags, 'F')
			}
		case string:
			tags = append(tags, 's')
			writePaddedString(&payload, v)
		case []byte:
			tags = append(tags, 'b')
			writeBlob(&payload, v)
		default:
			if n, ok := asNumeric(a); ok {
				if n == math.Trunc(n) && n >= math.MinInt32 && n <= math.MaxInt32 {
					tags = append(tags, 'i')
					var b4 [4]byte
					binary.BigEndian.PutUint32(b4[:], uint32(int32(n)))
					payload.Write(b4[:])
				} else {
					tags = append(tags, 'f')
					var b4 [4]byte
					binary.BigEndian.PutUint32(b4[:], math.Float32bits(float32(n)))
					payload.Write(b4[:])
				}
			}
			// any other type: skipped (caller is expected to log if it cares)
		}
	}

	writePaddedString(&buf, string(tags))
	buf.Write(payload.Bytes())
	return buf.Bytes()
}
