package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"OctaMuse/logger"
	"OctaMuse/model"
)

// Sentinel errors surfaced to callers. Anything transport-level or a 5xx from
// the provider maps to ErrProviderUnavailable so the orchestrator can fail the
// attempt without inventing a job.
var (
	ErrProviderUnavailable = errors.New("generation provider unavailable")
	ErrInvalidRequest      = errors.New("generation request rejected by provider")
)

// GenerationClient abstracts the remote music generation provider.
type GenerationClient interface {
	// Submit sends a generation request and returns the provider's job id.
	Submit(ctx context.Context, userID int64, req *model.GenerationRequest) (string, error)
	// Poll reports the current state of a previously submitted job.
	Poll(ctx context.Context, jobID string) (*PollResult, error)
}

// PollResult is one observation of a remote job. Exactly one of Pending,
// Succeeded and Failed is set.
type PollResult struct {
	Pending   bool
	Succeeded bool
	Failed    bool
	// FailReason is the provider's status string when Failed.
	FailReason string
	// Result fields, populated only when Succeeded.
	ProviderResultID string
	AudioURL         string
	CoverURL         string
	DurationSeconds  int
}

// ClientConfig contains configuration for the provider client.
type ClientConfig struct {
	APIBaseURL string
	APIKey     string
}

// Client talks to the generation API over HTTP.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new provider client.
func NewClient(config *ClientConfig) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

const (
	providerModel = "V4_5PLUS"
	maxTitleRunes = 50

	// defaultCoverURL stands in when the provider returns a clip without any
	// cover image.
	defaultCoverURL = "https://via.placeholder.com/500x500.png?text=Music"
)

// generateRequest is the provider's submission body.
type generateRequest struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style"`
	Title        string `json:"title"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	NegativeTags string `json:"negativeTags"`
	CallBackURL  string `json:"callBackUrl"`
}

type generateResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

type recordInfoResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Status   string `json:"status"`
		Response struct {
			SunoData []sunoClip `json:"sunoData"`
		} `json:"response"`
	} `json:"data"`
}

type sunoClip struct {
	ID             string  `json:"id"`
	AudioURL       string  `json:"audioUrl"`
	SourceAudioURL string  `json:"sourceAudioUrl"`
	ImageURL       string  `json:"imageUrl"`
	SourceImageURL string  `json:"sourceImageUrl"`
	Duration       float64 `json:"duration"`
}

// Submit sends a generation request. Vocal tracks put the lyrics in the prompt
// field and the descriptive prompt in style; instrumental tracks send an empty
// prompt. A blank title falls back to a prefix of the user's prompt.
func (c *Client) Submit(ctx context.Context, userID int64, req *model.GenerationRequest) (string, error) {
	prompt := ""
	instrumental := true
	// 歌词只含空白时按纯音乐处理
	if strings.TrimSpace(req.VocalLyrics) != "" {
		prompt = req.VocalLyrics
		instrumental = false
	}

	title := req.Title
	if title == "" {
		runes := []rune(req.Prompt)
		if len(runes) > maxTitleRunes {
			runes = runes[:maxTitleRunes]
		}
		title = string(runes)
	}

	body := generateRequest{
		Prompt:       prompt,
		Style:        req.Prompt,
		Title:        title,
		CustomMode:   true,
		Instrumental: instrumental,
		Model:        providerModel,
		NegativeTags: "",
		CallBackURL:  "",
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.APIBaseURL+"/generate", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	logger.Info("[Provider] 提交生成任务",
		logger.Int64("userId", userID),
		logger.String("title", title),
		logger.Bool("instrumental", instrumental))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.Error("[Provider] 提交请求失败", logger.ErrorField(err))
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: provider returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", ErrInvalidRequest, resp.StatusCode, string(respBody))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}

	if genResp.Code != 200 {
		return "", fmt.Errorf("%w: code %d: %s", ErrInvalidRequest, genResp.Code, genResp.Msg)
	}
	if genResp.Data.TaskID == "" {
		return "", fmt.Errorf("%w: empty task id in response", ErrProviderUnavailable)
	}

	logger.Info("[Provider] 任务已受理",
		logger.Int64("userId", userID),
		logger.String("jobId", genResp.Data.TaskID))
	return genResp.Data.TaskID, nil
}

// Provider statuses that terminate a job unsuccessfully.
var failedStatuses = map[string]bool{
	"FAILED":               true,
	"ERROR":                true,
	"CREATE_TASK_FAILED":   true,
	"SENSITIVE_WORD_ERROR": true,
}

// Poll queries the record-info endpoint for one job. A 404 means the job is
// not visible yet and counts as pending, not as an error.
func (c *Client) Poll(ctx context.Context, jobID string) (*PollResult, error) {
	pollURL := fmt.Sprintf("%s/generate/record-info?taskId=%s", c.config.APIBaseURL, url.QueryEscape(jobID))
	httpReq, err := http.NewRequestWithContext(ctx, "GET", pollURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// 任务可能尚未入库，继续等待
		return &PollResult{Pending: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, string(respBody))
	}

	var info recordInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode record-info response: %w", err)
	}

	status := info.Data.Status
	switch {
	case status == "SUCCESS":
		return c.buildSuccess(jobID, &info)
	case failedStatuses[status]:
		logger.Warn("[Provider] 任务失败",
			logger.String("jobId", jobID),
			logger.String("status", status))
		return &PollResult{Failed: true, FailReason: status}, nil
	default:
		return &PollResult{Pending: true}, nil
	}
}

func (c *Client) buildSuccess(jobID string, info *recordInfoResponse) (*PollResult, error) {
	clips := info.Data.Response.SunoData
	if len(clips) == 0 {
		return nil, fmt.Errorf("%w: SUCCESS without result payload for job %s", ErrProviderUnavailable, jobID)
	}

	clip := clips[0]
	audioURL := clip.AudioURL
	if audioURL == "" {
		audioURL = clip.SourceAudioURL
	}
	if audioURL == "" {
		return nil, fmt.Errorf("%w: SUCCESS without audio url for job %s", ErrProviderUnavailable, jobID)
	}
	coverURL := clip.ImageURL
	if coverURL == "" {
		coverURL = clip.SourceImageURL
	}
	if coverURL == "" {
		coverURL = defaultCoverURL
	}

	duration := int(clip.Duration)
	if duration <= 0 {
		duration = model.DefaultTrackDuration
	}

	logger.Info("[Provider] 任务完成",
		logger.String("jobId", jobID),
		logger.String("resultId", clip.ID),
		logger.Int("duration", duration))

	return &PollResult{
		Succeeded:        true,
		ProviderResultID: clip.ID,
		AudioURL:         audioURL,
		CoverURL:         coverURL,
		DurationSeconds:  duration,
	}, nil
}
