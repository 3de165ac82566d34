package facedlib

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/disintegration/imaging"

	"rollcall/internal/media"
)

// toJPEG re-encodes PNG input as JPEG, the only format the dlib loader
// decodes. Anything else is returned unchanged.
func toJPEG(img []byte) ([]byte, error) {
	if http.DetectContentType(img) != "image/png" {
		return img, nil
	}
	decoded, err := imaging.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrInvalidImage, err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, decoded, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
