package netengine

import (
	"encoding/binary"
	"io"
)

// frameHeaderSize is the length of the little-endian length prefix that
// precedes every TCP frame's body.
const frameHeaderSize = 4

// maxFrameLength bounds the body length accepted from a decoded frame
// header. The wire format itself (an unsigned 32-bit length) permits up to
// 2^32-1; this package caps it to keep a single malformed peer from
// forcing an unbounded allocation, as permitted by the framing contract
// ("implementations may reject lengths exceeding a configured cap").
const maxFrameLength = 1<<31 - 1

// encodeFrameHeader writes the little-endian length prefix for a body of
// length n into dst, which must be at least frameHeaderSize bytes.
func encodeFrameHeader(dst []byte, n uint32) {
	binary.LittleEndian.PutUint32(dst, n)
}

// decodeFrameHeader reads the body length out of a frameHeaderSize-byte
// prefix.
func decodeFrameHeader(hdr []byte) uint32 {
	return binary.LittleEndian.Uint32(hdr)
}

// readFull loops over r.Read until buf is completely filled, returning an
// error on any short read that isn't simply "more to come": a read
// returning 0 bytes with a nil error, or any non-nil error, aborts the
// frame per the framing contract (§4.1: "Any short read returning 0 or
// negative aborts the connection").
func readFull(r io.Reader, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		if n <= 0 {
			if err == io.EOF && total > 0 {
				return io.ErrUnexpectedEOF
			}
			if err != nil {
				return err
			}
			return io.ErrUnexpectedEOF
		}
		total += n
		if err != nil && total < len(buf) {
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}

// readFrame reads one complete frame (length prefix + body) from r. It
// returns the body as a freshly allocated Packet, or an error identifying
// whether the stream closed cleanly (io.EOF on the very first header byte)
// or failed mid-frame.
func readFrame(r io.Reader, pool *bytePool, cap uint32) (*Packet, error) {
	var hdr [frameHeaderSize]byte
	if err := readFull(r, hdr[:]); err != nil {
		return nil, err
	}
	length := decodeFrameHeader(hdr[:])
	if cap != 0 && length > cap {
		return nil, &StatusError{Category: categoryFrame, Code: "FRAME_TOO_LARGE", Message: "decoded frame length exceeds configured cap"}
	}
	var pkt *Packet
	if pool != nil {
		pkt = newPooledPacket(pool, int(length))
	} else {
		pkt = NewPacketSize(int(length))
	}
	if length > 0 {
		if err := readFull(r, pkt.data); err != nil {
			pkt.Release()
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return pkt, nil
}

// writeFrame writes the length prefix as one Write, then the body as a
// second, looping until the full body is written. Per §4.2, the prefix
// write is attempted first and the body is never attempted if it fails.
func writeFrame(w io.Writer, body []byte) (int, error) {
	if len(body) > maxFrameLength {
		return 0, &StatusError{Category: categoryFrame, Code: "FRAME_TOO_LARGE", Message: "body exceeds maximum frame length"}
	}
	var hdr [frameHeaderSize]byte
	encodeFrameHeader(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, err
	}
	total := 0
	for total < len(body) {
		n, err := w.Write(body[total:])
		if n <= 0 {
			if err == nil {
				err = io.ErrShortWrite
			}
			return total, err
		}
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
