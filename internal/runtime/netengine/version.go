package netengine

import (
	"io"

	"github.com/Masterminds/semver/v3"
)

// protocolHandshakeFrameCap bounds the body length of the one extra version
// frame exchanged at connect time (see below); a longer frame fails the
// handshake and the connection is treated as incompatible.
//
// This handshake is additive framing layered on top of the core frame
// codec (§4.1); it is not a replacement for it and does not introduce
// multiplexed streams, so it does not conflict with the Non-goals in
// spec.md §1.
const protocolHandshakeFrameCap = 256

func parseVersion(v string) (*semver.Version, error) {
	return semver.NewVersion(v)
}

func parseConstraint(c string) (*semver.Constraints, error) {
	return semver.NewConstraint(c)
}

// sendProtocolVersion writes one length-prefixed frame carrying v as its
// body, using the same codec as ordinary traffic.
func sendProtocolVersion(w io.Writer, v string) error {
	_, err := writeFrame(w, []byte(v))
	return err
}

// recvProtocolVersion reads one length-prefixed frame and returns its body
// as a version string.
func recvProtocolVersion(r io.Reader) (string, error) {
	pkt, err := readFrame(r, nil, protocolHandshakeFrameCap)
	if err != nil {
		return "", err
	}
	defer pkt.Release()
	return string(pkt.Bytes()), nil
}

// checkProtocolCompatible reports whether peerVersion satisfies constraint.
// An empty constraint always succeeds (handshake disabled).
func checkProtocolCompatible(constraint, peerVersion string) (bool, error) {
	if constraint == "" {
		return true, nil
	}
	c, err := parseConstraint(constraint)
	if err != nil {
		return false, err
	}
	v, err := parseVersion(peerVersion)
	if err != nil {
		return false, err
	}
	return c.Check(v), nil
}
