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
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/duotale/duotale/config"
	"github.com/duotale/duotale/internal/request"
	"github.com/duotale/duotale/internal/retry"
)

// BalanceView is the wire form of a device's credit position.
type BalanceView struct {
	Balance   int64 `json:"balance"`
	Reserved  int64 `json:"reserved"`
	Available int64 `json:"available"`
}

// JobStartResult is the wire response of a successful hold.
type JobStartResult struct {
	JobID    string `json:"job_id"`
	Reserved int64  `json:"reserved"`
	Balance  int64  `json:"balance"`
}

// RedeemResult is the wire response of a receipt redemption.
type RedeemResult struct {
	Granted int64 `json:"granted"`
	Balance int64 `json:"balance"`
}

// CreditClient is the HTTP client half of the job ledger: it drives the
// /credits and /jobs endpoints of an edge service on behalf of one device.
// Generation pipelines running next to the device meter themselves through
// it; the server binary talks to the ledger directly instead.
type CreditClient struct {
	baseURL  string
	deviceID string
	timeout  time.Duration
	policy   retry.Policy
}

// NewCreditClient builds a ledger client for one device.
//
// Parameters:
// - baseURL string: The edge service base URL.
// - deviceID string: The device identity sent with every request.
// - conf *config.Configuration: The configuration holding timeout and retry settings.
//
// Returns:
// - *CreditClient: The configured client.
func NewCreditClient(baseURL, deviceID string, conf *config.Configuration) *CreditClient {
	return &CreditClient{
		baseURL:  baseURL,
		deviceID: deviceID,
		timeout:  time.Duration(conf.Chat.TimeoutSec) * time.Second,
		policy:   retryPolicyFromConfig(conf),
	}
}

// Balance fetches the device's current credit position.
func (c *CreditClient) Balance(ctx context.Context) (*BalanceView, error) {
	var view BalanceView
	if err := c.call(ctx, http.MethodGet, "/credits/balance", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// StartJob reserves credits for one billable job. A non-empty jobID makes
// the reservation idempotent: retrying the same jobID never double-reserves.
// Insufficient credits surface as InsufficientCreditsError carrying the
// device's current balance.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - amount int64: The credits to reserve.
// - jobID string: Optional caller-chosen job ID for idempotent retries.
// - ttl time.Duration: Optional hold lifetime; zero uses the server default.
//
// Returns:
// - *JobStartResult: The job ID and resulting balance position.
// - error: An error if the reservation was rejected or all attempts failed.
func (c *CreditClient) StartJob(ctx context.Context, amount int64, jobID string, ttl time.Duration) (*JobStartResult, error) {
	payload := map[string]interface{}{
		"amount": amount,
	}
	if jobID != "" {
		payload["job_id"] = jobID
	}
	if ttl > 0 {
		payload["ttl_seconds"] = int(ttl / time.Second)
	}

	var result JobStartResult
	if err := c.call(ctx, http.MethodPost, "/jobs/start", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CommitJob settles a hold, consuming the reserved credits.
func (c *CreditClient) CommitJob(ctx context.Context, jobID string) (*BalanceView, error) {
	var view BalanceView
	err := c.call(ctx, http.MethodPost, "/jobs/commit", map[string]interface{}{"job_id": jobID}, &view)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// CancelJob releases a hold, returning the reserved credits.
func (c *CreditClient) CancelJob(ctx context.Context, jobID string) (*BalanceView, error) {
	var view BalanceView
	err := c.call(ctx, http.MethodPost, "/jobs/cancel", map[string]interface{}{"job_id": jobID}, &view)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Redeem exchanges a purchase proof for credits.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - receipt string: The signed receipt from the store.
// - productID string: The purchased product code.
// - signature string: The HMAC signature over the receipt.
//
// Returns:
// - *RedeemResult: Granted credits and the updated balance.
// - error: An error if the proof was rejected.
func (c *CreditClient) Redeem(ctx context.Context, receipt, productID, signature string) (*RedeemResult, error) {
	payload := map[string]interface{}{
		"receipt":    receipt,
		"product_id": productID,
		"signature":  signature,
	}
	var result RedeemResult
	if err := c.call(ctx, http.MethodPost, "/credits/redeem", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// call drives one edge endpoint under the retry policy, decoding the JSON
// response into out on success and classifying error statuses onto the
// ledger error taxonomy.
func (c *CreditClient) call(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		return retry.WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
			var body io.Reader
			if payload != nil {
				buf, err := request.ToJsonReq(payload)
				if err != nil {
					return retry.Permanent(err)
				}
				body = buf
			}
			httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
			if err != nil {
				return retry.Permanent(err)
			}
			httpReq.Header.Set("X-Device-ID", c.deviceID)

			resp, err := request.CallRaw(httpReq, c.timeout)
			if err != nil {
				return errors.Wrapf(err, "%s %s failed", method, path)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode >= 400 {
				return classifyEdgeResponse(resp, path)
			}
			return decodeJSONBody(resp, out)
		})
	})
}

func decodeJSONBody(resp *http.Response, out interface{}) error {
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(errors.Wrap(err, "decoding response"))
	}
	return nil
}
