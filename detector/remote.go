package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/HRV220/plate-detect/models"
)

// RemoteModel talks to the detection capability over HTTP: images go out as
// base64 JPEG alongside the device selector, oriented boxes come back per
// image.
type RemoteModel struct {
	url    string
	device string
	client *http.Client
	logger *zap.Logger
}

func NewRemoteModel(url, device string, logger *zap.Logger) *RemoteModel {
	return &RemoteModel{
		url:    url,
		device: device,
		client: &http.Client{Timeout: 2 * time.Minute},
		logger: logger,
	}
}

type predictRequest struct {
	Device string   `json:"device"`
	Images []string `json:"images"`
}

type predictResponse struct {
	Results [][]models.OrientedBox `json:"results"`
}

func (m *RemoteModel) Predict(ctx context.Context, images []image.Image) ([][]models.OrientedBox, error) {
	encoded := make([]string, 0, len(images))
	for _, img := range images {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
			return nil, fmt.Errorf("encode image for inference: %w", err)
		}
		encoded = append(encoded, base64.StdEncoding.EncodeToString(buf.Bytes()))
	}

	body, err := json.Marshal(predictRequest{Device: m.device, Images: encoded})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: model returned %s", ErrUnavailable, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model rejected batch: %s", resp.Status)
	}

	var parsed predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}

	return parsed.Results, nil
}
