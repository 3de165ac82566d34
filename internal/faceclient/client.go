package faceclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"rollcall/internal/face"
)

// skipDim is the length of synthetic embeddings returned in Skip mode.
const skipDim = 128

// Client calls the face detection/embedding microservice and implements
// face.Extractor.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

var _ face.Extractor = (*Client)(nil)

// New creates a client with configurable timeout.
func New(baseURL string, skip bool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second // face processing can take time
	}
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type detectResponse struct {
	Faces []struct {
		Embedding []float32 `json:"embedding"`
		Box       face.BBox `json:"box"`
	} `json:"faces"`
}

// Extract uploads the image to /detect and returns every face found.
// Zero faces is a valid response, not an error.
func (c *Client) Extract(ctx context.Context, img []byte) ([]face.Detection, error) {
	if c.Skip {
		return []face.Detection{syntheticDetection(img)}, nil
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("image required")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", "image")
	if err != nil {
		return nil, fmt.Errorf("create form file failed: %w", err)
	}
	if _, err := part.Write(img); err != nil {
		return nil, fmt.Errorf("write form file failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/detect", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: face service request failed: %w", face.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: face service error %s: %s", face.ErrModelUnavailable, resp.Status, string(bodyBytes))
		}
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	dets := make([]face.Detection, 0, len(out.Faces))
	for _, f := range out.Faces {
		dets = append(dets, face.Detection{Embedding: face.Embedding(f.Embedding), Box: f.Box})
	}
	return dets, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}

// syntheticDetection derives a stable pseudo-embedding from the image bytes so
// identical uploads match each other when running without a model.
func syntheticDetection(img []byte) face.Detection {
	emb := make(face.Embedding, skipDim)
	seed := sha256.Sum256(img)
	block := seed[:]
	for i := range emb {
		if i > 0 && i%8 == 0 {
			next := sha256.Sum256(block)
			block = next[:]
		}
		v := binary.BigEndian.Uint32(block[(i%8)*4:])
		emb[i] = float32(v)/float32(^uint32(0))*0.2 - 0.1
	}
	return face.Detection{
		Embedding: emb,
		Box:       face.BBox{Top: 0, Right: 100, Bottom: 100, Left: 0},
	}
}
