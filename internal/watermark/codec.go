// Package watermark defines the external mark codec capability. The codec's
// signal processing lives in a sidecar process; this package only carries its
// contract.
package watermark

import "context"

// Method names the codec scheme reported to clients.
const Method = "trustmark"

// Decoded is the codec's report for one image.
type Decoded struct {
	// Payload is the recovered identifier, empty when absent.
	Payload string
	// Present is the codec's affirmative statement that a mark exists.
	Present bool
	// Confidence is in [0,1].
	Confidence float64
}

// Codec is the fixed embed/decode capability. There is exactly one method for
// each operation; implementations must not probe alternative entry points.
type Codec interface {
	// Embed returns a new image carrying payload. A failure means the image
	// is unembeddable or the codec is unreachable; callers must never fall
	// back to the unmarked image.
	Embed(ctx context.Context, image []byte, payload string) ([]byte, error)

	// Decode inspects image for a mark. A clean "no mark" report is
	// Decoded{Present: false} with a nil error; a non-nil error means the
	// codec could not produce a report at all.
	Decode(ctx context.Context, image []byte) (*Decoded, error)
}
