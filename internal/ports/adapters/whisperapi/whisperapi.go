package whisperapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/forPelevin/yt2text/internal/types"
)

// Adapter talks to an OpenAI-compatible /v1/audio/transcriptions endpoint.
type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

const (
	requestTimeout = 10 * time.Minute
	maxRetries     = 5
)

// retryBaseDelay is the first 429 backoff; it doubles on every attempt.
var retryBaseDelay = 10 * time.Second

func New(apiKey, model, baseURL string) *Adapter {
	if model == "" {
		model = "whisper-1"
	}
	return &Adapter{key: apiKey, model: model, baseURL: normalizeBaseURL(baseURL), client: &http.Client{}}
}

// Transcribe checks its inputs up front; the upload itself happens on the
// first iteration of the returned sequence.
func (a *Adapter) Transcribe(ctx context.Context, audioPath, langHint string) (iter.Seq2[types.Segment, error], error) {
	if strings.TrimSpace(a.key) == "" {
		return nil, errors.New("transcription API key is not set")
	}
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file: %w", err)
	}

	var used atomic.Bool
	return func(yield func(types.Segment, error) bool) {
		if used.Swap(true) {
			yield(types.Segment{}, errors.New("transcription sequence already consumed"))
			return
		}
		segs, err := a.request(ctx, audioPath, langHint)
		if err != nil {
			yield(types.Segment{}, err)
			return
		}
		for _, s := range segs {
			if !yield(s, nil) {
				return
			}
		}
	}, nil
}

func (a *Adapter) request(ctx context.Context, audioPath, langHint string) ([]types.Segment, error) {
	body, contentType, err := buildMultipart(audioPath, a.model, langHint)
	if err != nil {
		return nil, err
	}
	url := a.baseURL + "/v1/audio/transcriptions"

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := a.doWithRetry(reqCtx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+a.key)
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("transcription timeout after %s (model=%s)", requestTimeout, a.model)
		}
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("transcription status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("transcription status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}
	return decodeVerbose(resp.Body)
}

// doWithRetry retries HTTP 429 with exponential backoff. The request is
// rebuilt for every attempt because the multipart body is consumed.
func (a *Adapter) doWithRetry(ctx context.Context, newReq func() (*http.Request, error)) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, err
		}
		resp, err := a.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= maxRetries {
			return resp, nil
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := time.Duration(math.Pow(2, float64(attempt))) * retryBaseDelay
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func buildMultipart(audioPath, model, langHint string) ([]byte, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}
	fields := [][2]string{
		{"model", model},
		{"response_format", "verbose_json"},
	}
	if langHint != "" {
		fields = append(fields, [2]string{"language", langHint})
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func decodeVerbose(r io.Reader) ([]types.Segment, error) {
	var raw struct {
		Text     string  `json:"text"`
		Duration float64 `json:"duration"`
		Segments []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Text  string  `json:"text"`
		} `json:"segments"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode transcription: %w", err)
	}

	// Some compatible servers omit segments and only return text.
	if len(raw.Segments) == 0 {
		if strings.TrimSpace(raw.Text) == "" {
			return nil, nil
		}
		return []types.Segment{{Start: 0, End: raw.Duration, Text: raw.Text}}, nil
	}

	// Segment text is kept verbatim: the leading space is the word boundary
	// when segments are concatenated.
	out := make([]types.Segment, 0, len(raw.Segments))
	for _, s := range raw.Segments {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		out = append(out, types.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
