package localdev

import (
	"crypto/sha256"
	"encoding/binary"
)

// Result is what a Detector reports for one image.
type Result struct {
	NumPeople  int
	Confidence float64
	Annotated  []byte
}

// Detector finds people in an image.
type Detector interface {
	Detect(image []byte) (Result, error)
}

// HashDetector derives a stable, fake result from the image bytes. The annotated
// image is the input unchanged.
type HashDetector struct {
	MaxPeople int
}

// Detect implements Detector.
func (h HashDetector) Detect(image []byte) (Result, error) {
	maxPeople := h.MaxPeople
	if maxPeople <= 0 {
		maxPeople = 6
	}
	sum := sha256.Sum256(image)
	people := int(binary.BigEndian.Uint32(sum[:4]) % uint32(maxPeople+1))
	if people == 0 {
		return Result{Annotated: image}, nil
	}
	// Mean confidence in [0.50, 0.99].
	confidence := 0.5 + float64(binary.BigEndian.Uint16(sum[4:6])%50)/100
	return Result{NumPeople: people, Confidence: confidence, Annotated: image}, nil
}
