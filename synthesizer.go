/*
Copyright 2025 DuoTale Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package duotale

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/duotale/duotale/config"
	"github.com/duotale/duotale/internal/cache"
	"github.com/duotale/duotale/internal/request"
	"github.com/duotale/duotale/internal/retry"
	"github.com/duotale/duotale/model"
)

const (
	defaultAudioFormat = "mp3"

	// Synthesized clips are immutable for a given request, so they can sit in
	// the cache for a long time. The TTL only bounds storage, not correctness.
	audioCacheTTL = 7 * 24 * time.Hour
)

// SpeechRequest is the typed payload for one synthesis call: the segment
// text, its language, and the optional voice/speed/format overrides.
type SpeechRequest struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Speed    float64 `json:"speed,omitempty"`
	Voice    string  `json:"voice,omitempty"`
	Format   string  `json:"format,omitempty"`
}

// CacheKey returns the deterministic cache key for this request. Two
// requests that would produce the same audio share a key.
func (r SpeechRequest) CacheKey() string {
	return "tts:" + model.Checksum(
		r.Text,
		r.Language,
		r.Voice,
		strconv.FormatFloat(r.Speed, 'f', -1, 64),
		r.Format,
	)
}

// Synthesizer converts text into audio through the upstream text-to-speech
// provider, with a tiered cache in front so repeated segments (series
// regenerations, retries) never pay for a second remote call.
type Synthesizer struct {
	conf    config.SpeechConfig
	timeout time.Duration
	policy  retry.Policy
	cache   cache.Cache
}

// NewSpeechClient builds the synthesis service from configuration. When the
// cache cannot be initialized the service still works, it just synthesizes
// every request remotely.
//
// Parameters:
// - conf *config.Configuration: The configuration holding the provider settings.
//
// Returns:
// - SpeechClient: The configured synthesis service.
func NewSpeechClient(conf *config.Configuration) SpeechClient {
	audioCache, err := cache.NewCache()
	if err != nil {
		logrus.Warnf("audio cache disabled: %v", err)
		audioCache = nil
	}
	return &Synthesizer{
		conf:    conf.Speech,
		timeout: time.Duration(conf.Speech.TimeoutSec) * time.Second,
		policy:  retryPolicyFromConfig(conf),
		cache:   audioCache,
	}
}

// Synthesize returns the audio bytes for a request, serving from cache when
// the same text/voice/speed combination was rendered before. Remote calls
// are bounded by the audio timeout and retried on transient failures.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - req SpeechRequest: The synthesis request.
//
// Returns:
// - []byte: The rendered audio clip.
// - error: An error if the upstream call failed after retries.
func (s *Synthesizer) Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, errors.New("synthesis requires text")
	}
	if req.Voice == "" {
		req.Voice = s.conf.PrimaryVoice
	}
	if req.Format == "" {
		req.Format = defaultAudioFormat
	}
	if req.Speed == 0 {
		req.Speed = 1.0
	}

	if clip := s.cachedClip(ctx, req); len(clip) > 0 {
		return clip, nil
	}

	var clip []byte
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		return retry.WithTimeout(ctx, s.timeout, func(ctx context.Context) error {
			rendered, err := s.render(ctx, req)
			if err != nil {
				return err
			}
			clip = rendered
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.storeClip(ctx, req, clip)
	return clip, nil
}

func (s *Synthesizer) cachedClip(ctx context.Context, req SpeechRequest) []byte {
	if s.cache == nil {
		return nil
	}
	var clip []byte
	if err := s.cache.Get(ctx, req.CacheKey(), &clip); err != nil {
		logrus.Warnf("audio cache read failed: %v", err)
		return nil
	}
	return clip
}

func (s *Synthesizer) storeClip(ctx context.Context, req SpeechRequest, clip []byte) {
	if s.cache == nil || len(clip) == 0 {
		return
	}
	if err := s.cache.Set(ctx, req.CacheKey(), clip, audioCacheTTL); err != nil {
		logrus.Warnf("audio cache write failed: %v", err)
	}
}

// render performs one upstream synthesis call.
func (s *Synthesizer) render(ctx context.Context, req SpeechRequest) ([]byte, error) {
	payload := map[string]interface{}{
		"model":           s.conf.Model,
		"input":           req.Text,
		"voice":           req.Voice,
		"speed":           req.Speed,
		"response_format": req.Format,
	}
	body, err := request.ToJsonReq(payload)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.conf.Url, body)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	httpReq.Header.Set("Authorization", request.Bearer(s.conf.ApiKey))

	resp, err := request.CallRaw(httpReq, s.timeout)
	if err != nil {
		return nil, errors.Wrap(err, "speech request failed")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Error(err)
		}
	}()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("speech upstream unavailable (%d): %s", resp.StatusCode, string(detail))
		}
		return nil, retry.Permanent(&model.UpstreamError{
			Endpoint:   "tts",
			StatusCode: resp.StatusCode,
			Message:    string(detail),
		})
	}

	clip, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading synthesized audio")
	}
	if len(clip) == 0 {
		return nil, retry.Permanent(&model.UpstreamError{
			Endpoint:   "tts",
			StatusCode: resp.StatusCode,
			Message:    "empty audio response",
		})
	}
	return clip, nil
}
