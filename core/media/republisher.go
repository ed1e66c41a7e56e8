package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"OctaMuse/logger"
	"OctaMuse/storage"

	"github.com/google/uuid"
)

// Republisher copies provider-hosted media into owned object storage so the
// result outlives the provider's short-lived URLs. It degrades gracefully:
// any download or upload failure keeps the original remote URL.
type Republisher interface {
	// RepublishAudio returns the durable URL for a generated audio file, or
	// the original URL when republishing fails.
	RepublishAudio(ctx context.Context, userID int64, remoteURL string) string
	// RepublishCover does the same for the cover image. An empty remote URL
	// is passed through unchanged.
	RepublishCover(ctx context.Context, userID int64, remoteURL string) string
}

type httpRepublisher struct {
	uploader   storage.ObjectUploader
	httpClient *http.Client
}

// NewRepublisher creates a Republisher that downloads over HTTP and uploads
// through the given object storage.
func NewRepublisher(uploader storage.ObjectUploader) Republisher {
	return &httpRepublisher{
		uploader: uploader,
		httpClient: &http.Client{
			Timeout: 60 * time.Second, // 音频文件可能较大
		},
	}
}

func (r *httpRepublisher) RepublishAudio(ctx context.Context, userID int64, remoteURL string) string {
	key := fmt.Sprintf("%d_%s.mp3", userID, uuid.NewString())
	return r.republish(ctx, userID, remoteURL, storage.MusicBucket, key, "audio/mpeg")
}

func (r *httpRepublisher) RepublishCover(ctx context.Context, userID int64, remoteURL string) string {
	if remoteURL == "" {
		return ""
	}
	key := fmt.Sprintf("%d_%s.jpg", userID, uuid.NewString())
	return r.republish(ctx, userID, remoteURL, storage.CoverBucket, key, "image/jpeg")
}

func (r *httpRepublisher) republish(ctx context.Context, userID int64, remoteURL, bucket, key, contentType string) string {
	data, err := r.download(ctx, remoteURL)
	if err != nil {
		logger.Warn("[Media] 下载远程文件失败，保留原始链接",
			logger.Int64("userId", userID),
			logger.String("remoteUrl", remoteURL),
			logger.ErrorField(err))
		return remoteURL
	}

	publicURL, err := r.uploader.Upload(ctx, bucket, key, data, contentType)
	if err != nil {
		logger.Warn("[Media] 上传到对象存储失败，保留原始链接",
			logger.Int64("userId", userID),
			logger.String("bucket", bucket),
			logger.String("key", key),
			logger.ErrorField(err))
		return remoteURL
	}

	logger.Info("[Media] 媒体转存成功",
		logger.Int64("userId", userID),
		logger.String("bucket", bucket),
		logger.String("key", key),
		logger.Int("bytes", len(data)))
	return publicURL
}

func (r *httpRepublisher) download(ctx context.Context, remoteURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", remoteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("remote returned empty body")
	}
	return data, nil
}
