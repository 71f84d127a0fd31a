// Package remote receives boolean toggles over OSC/UDP.
package remote

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("malformed osc packet")

const bundleTag = "#bundle"

// Toggle is one boolean OSC message.
type Toggle struct {
	Address string
	Value   bool
}

// Decode extracts toggles from an OSC packet. Messages whose arguments are
// anything other than exactly one T or F are skipped. Bundles are walked
// recursively.
func Decode(packet []byte) ([]Toggle, error) {
	var out []Toggle
	if err := decodePacket(packet, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodePacket(p []byte, out *[]Toggle) error {
	if len(p) == 0 || len(p)%4 != 0 {
		return fmt.Errorf("%w: size %d", ErrMalformed, len(p))
	}
	if p[0] == '#' {
		return decodeBundle(p, out)
	}
	t, ok, err := decodeMessage(p)
	if err != nil {
		return err
	}
	if ok {
		*out = append(*out, t)
	}
	return nil
}

func decodeBundle(p []byte, out *[]Toggle) error {
	tag, off, err := readString(p, 0)
	if err != nil {
		return err
	}
	if tag != bundleTag {
		return fmt.Errorf("%w: bad bundle tag %q", ErrMalformed, tag)
	}
	// time tag is ignored, toggles apply on arrival
	off += 8
	if off > len(p) {
		return fmt.Errorf("%w: truncated bundle", ErrMalformed)
	}

	for off < len(p) {
		if off+4 > len(p) {
			return fmt.Errorf("%w: truncated element size", ErrMalformed)
		}
		size := int(int32(binary.BigEndian.Uint32(p[off:])))
		off += 4
		if size < 0 || off+size > len(p) {
			return fmt.Errorf("%w: element size %d", ErrMalformed, size)
		}
		if err := decodePacket(p[off:off+size], out); err != nil {
			return err
		}
		off += size
	}
	return nil
}

func decodeMessage(p []byte) (Toggle, bool, error) {
	address, off, err := readString(p, 0)
	if err != nil {
		return Toggle{}, false, err
	}
	if len(address) == 0 || address[0] != '/' {
		return Toggle{}, false, fmt.Errorf("%w: address %q", ErrMalformed, address)
	}

	// a message without a type tag string carries no arguments
	if off == len(p) {
		return Toggle{}, false, nil
	}

	tags, _, err := readString(p, off)
	if err != nil {
		return Toggle{}, false, err
	}
	if len(tags) == 0 || tags[0] != ',' {
		return Toggle{}, false, fmt.Errorf("%w: type tags %q", ErrMalformed, tags)
	}

	switch tags[1:] {
	case "T":
		return Toggle{Address: address, Value: true}, true, nil
	case "F":
		return Toggle{Address: address, Value: false}, true, nil
	default:
		return Toggle{}, false, nil
	}
}

// readString reads a NUL terminated string padded to a multiple of four.
func readString(p []byte, off int) (string, int, error) {
	if off >= len(p) {
		return "", 0, fmt.Errorf("%w: missing string at %d", ErrMalformed, off)
	}
	n := bytes.IndexByte(p[off:], 0)
	if n < 0 {
		return "", 0, fmt.Errorf("%w: unterminated string at %d", ErrMalformed, off)
	}
	s := string(p[off : off+n])
	next := off + (n/4+1)*4
	if next > len(p) {
		return "", 0, fmt.Errorf("%w: string padding at %d", ErrMalformed, off)
	}
	return s, next, nil
}

// EncodeBool builds a single-argument boolean message.
func EncodeBool(address string, value bool) []byte {
	tag := ",F"
	if value {
		tag = ",T"
	}
	var buf bytes.Buffer
	writeString(&buf, address)
	writeString(&buf, tag)
	return buf.Bytes()
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	pad := 4 - len(s)%4
	buf.Write(make([]byte, pad))
}
