package netengine

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/corvidnet/netengine/internal/testrunner/prop"
)

func genByte() prop.Generator[byte] {
	return func(r *rand.Rand, size int) byte { return byte(r.Intn(256)) }
}

// TestFrameCodecRoundTripProperty checks, over many random bodies of varying
// length, that writeFrame followed by readFrame reproduces the original
// body exactly: the frame codec's core correctness property.
func TestFrameCodecRoundTripProperty(t *testing.T) {
	gen := prop.GenSlice[byte](genByte())
	roundTrips := func(body []byte) bool {
		var buf bytes.Buffer
		if _, err := writeFrame(&buf, body); err != nil {
			return false
		}
		pkt, err := readFrame(&buf, nil, 0)
		if err != nil {
			return false
		}
		defer pkt.Release()
		if len(body) == 0 {
			return pkt.Size() == 0
		}
		return bytes.Equal(pkt.Bytes(), body)
	}

	res := prop.ForAll1(gen, nil, roundTrips, prop.Options{Trials: 300, Size: 64})
	if res.Failed {
		t.Fatalf("frame codec round-trip property failed for input %v (seed %d)", res.FailingInput, res.Seed)
	}
}
