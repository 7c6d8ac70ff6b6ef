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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/duotale/duotale/config"
	"github.com/duotale/duotale/internal/request"
	"github.com/duotale/duotale/internal/retry"
	"github.com/duotale/duotale/model"
)

// SpeechClient is the synthesis surface the pipeline renders audio through.
// The in-process Synthesizer implements it for the server binary; the remote
// client implements it for deployments where generation runs next to the
// device and synthesis goes through an edge service.
type SpeechClient interface {
	Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error)
}

// RemoteSpeechClient synthesizes through a remote edge's /tts endpoint,
// authenticated by device identity.
type RemoteSpeechClient struct {
	baseURL  string
	deviceID string
	timeout  time.Duration
	policy   retry.Policy
}

// NewRemoteSpeechClient builds a client of a remote /tts endpoint.
//
// Parameters:
// - baseURL string: The edge service base URL.
// - deviceID string: The device identity sent with every request.
// - conf *config.Configuration: The configuration holding timeout and retry settings.
//
// Returns:
// - *RemoteSpeechClient: The configured client.
func NewRemoteSpeechClient(baseURL, deviceID string, conf *config.Configuration) *RemoteSpeechClient {
	return &RemoteSpeechClient{
		baseURL:  baseURL,
		deviceID: deviceID,
		timeout:  time.Duration(conf.Speech.TimeoutSec) * time.Second,
		policy:   retryPolicyFromConfig(conf),
	}
}

// Synthesize posts the request to the edge and returns the raw audio bytes.
// Transient failures are retried; a 402 maps to InsufficientCreditsError so
// callers can surface the purchase prompt.
func (c *RemoteSpeechClient) Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error) {
	var clip []byte
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		return retry.WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
			body, err := request.ToJsonReq(&req)
			if err != nil {
				return retry.Permanent(err)
			}
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts", body)
			if err != nil {
				return retry.Permanent(err)
			}
			httpReq.Header.Set("X-Device-ID", c.deviceID)

			resp, err := request.CallRaw(httpReq, c.timeout)
			if err != nil {
				return errors.Wrap(err, "tts request failed")
			}
			defer func() {
				if err := resp.Body.Close(); err != nil {
					logrus.Error(err)
				}
			}()

			if resp.StatusCode >= 400 {
				return classifyEdgeResponse(resp, "tts")
			}

			clip, err = io.ReadAll(resp.Body)
			if err != nil {
				return errors.Wrap(err, "reading synthesized audio")
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return clip, nil
}

// classifyEdgeResponse maps an edge error response onto the error taxonomy:
// 402 carries the current balance, 403 is an ownership rejection, 429/5xx
// are transient, the rest are permanent upstream rejections.
func classifyEdgeResponse(resp *http.Response, endpoint string) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		var rejection struct {
			Error    string `json:"error"`
			Balance  int64  `json:"balance"`
			Reserved int64  `json:"reserved"`
		}
		_ = json.Unmarshal(detail, &rejection)
		return retry.Permanent(&model.InsufficientCreditsError{
			Balance:  rejection.Balance,
			Reserved: rejection.Reserved,
		})
	case resp.StatusCode == http.StatusForbidden:
		return retry.Permanent(&model.AuthorizationMismatchError{})
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%s edge unavailable (%d): %s", endpoint, resp.StatusCode, string(detail))
	default:
		return retry.Permanent(&model.UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    string(detail),
		})
	}
}
