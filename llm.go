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
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/duotale/duotale/config"
	"github.com/duotale/duotale/internal/request"
	"github.com/duotale/duotale/internal/retry"
	"github.com/duotale/duotale/model"
)

// ChatMessage is one turn of a chat-completion conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the typed wire payload for the upstream chat-completion API.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

// ChatChoice is one candidate completion returned by the upstream API.
type ChatChoice struct {
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatError is the upstream provider's error envelope.
type ChatError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ChatCompletion is the typed response of the chat-completion API.
type ChatCompletion struct {
	ID      string       `json:"id"`
	Choices []ChatChoice `json:"choices"`
	Error   *ChatError   `json:"error,omitempty"`
}

// Prompt is one completion request from a generation stage. Temperature zero
// leaves the provider default in place; stages that need precision
// (translation) or invention (narrative) set their own.
type Prompt struct {
	System      string
	User        string
	Temperature float64
}

// ChatClient is the upstream model surface the generation stages run on.
// Complete returns the single completion text for a prompt; Raw forwards a
// full typed request and hands back the provider's JSON untouched, for the
// passthrough endpoint.
type ChatClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
	Raw(ctx context.Context, payload ChatRequest) (json.RawMessage, error)
}

// OpenAIChatClient talks to an OpenAI-compatible chat-completion endpoint.
type OpenAIChatClient struct {
	url     string
	apiKey  string
	model   string
	timeout time.Duration
	policy  retry.Policy
}

// NewChatClient builds the chat-completion client from configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration holding provider URL, key, model and timeouts.
//
// Returns:
// - ChatClient: The configured client.
func NewChatClient(conf *config.Configuration) ChatClient {
	return &OpenAIChatClient{
		url:     conf.Chat.Url,
		apiKey:  conf.Chat.ApiKey,
		model:   conf.Chat.Model,
		timeout: time.Duration(conf.Chat.TimeoutSec) * time.Second,
		policy:  retryPolicyFromConfig(conf),
	}
}

func retryPolicyFromConfig(conf *config.Configuration) retry.Policy {
	policy := retry.DefaultPolicy()
	if conf.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = conf.Retry.MaxAttempts
	}
	if conf.Retry.BaseDelayMs > 0 {
		policy.InitialDelay = time.Duration(conf.Retry.BaseDelayMs) * time.Millisecond
	}
	if conf.Retry.MaxIntervalSec > 0 {
		policy.MaxInterval = time.Duration(conf.Retry.MaxIntervalSec) * time.Second
	}
	return policy
}

// Complete sends a prompt and returns the first choice's text. Transport
// failures and 429/5xx responses are retried with backoff inside the
// configured timeout per attempt; provider rejections are permanent.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - prompt Prompt: The system/user instruction pair with optional temperature.
//
// Returns:
// - string: The completion text, trimmed.
// - error: An error if every attempt failed or the provider rejected the request.
func (c *OpenAIChatClient) Complete(ctx context.Context, prompt Prompt) (string, error) {
	payload := ChatRequest{
		Model:       c.model,
		Temperature: prompt.Temperature,
		Messages: []ChatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
	}

	var content string
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		return retry.WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
			completion, err := c.send(ctx, payload)
			if err != nil {
				return err
			}
			if len(completion.Choices) == 0 {
				return retry.Permanent(&model.UpstreamError{
					Endpoint:   "chat",
					StatusCode: http.StatusOK,
					Message:    "completion carried no choices",
				})
			}
			content = strings.TrimSpace(completion.Choices[0].Message.Content)
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// Raw forwards a typed chat request and returns the provider's response body
// verbatim. Used by the passthrough endpoint; no retries beyond the standard
// policy, no unwrapping of choices.
func (c *OpenAIChatClient) Raw(ctx context.Context, payload ChatRequest) (json.RawMessage, error) {
	if payload.Model == "" {
		payload.Model = c.model
	}

	var raw json.RawMessage
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		return retry.WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
			body, err := request.ToJsonReq(&payload)
			if err != nil {
				return retry.Permanent(err)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
			if err != nil {
				return retry.Permanent(err)
			}
			req.Header.Set("Authorization", request.Bearer(c.apiKey))

			resp, err := request.Call(req, &raw)
			if err != nil {
				return errors.Wrap(err, "chat request failed")
			}
			return classifyChatStatus(resp.StatusCode, "")
		})
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *OpenAIChatClient) send(ctx context.Context, payload ChatRequest) (*ChatCompletion, error) {
	body, err := request.ToJsonReq(&payload)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Authorization", request.Bearer(c.apiKey))

	var completion ChatCompletion
	resp, err := request.Call(req, &completion)
	if err != nil {
		return nil, errors.Wrap(err, "chat request failed")
	}

	message := ""
	if completion.Error != nil {
		message = completion.Error.Message
	}
	if err := classifyChatStatus(resp.StatusCode, message); err != nil {
		return nil, err
	}
	return &completion, nil
}

// classifyChatStatus maps an upstream status to the retry taxonomy: 429 and
// 5xx are transient, other non-2xx responses are provider rejections and
// never retried.
func classifyChatStatus(status int, message string) error {
	if status < 400 {
		return nil
	}
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return errors.Errorf("chat upstream unavailable (%d): %s", status, message)
	}
	return retry.Permanent(&model.UpstreamError{
		Endpoint:   "chat",
		StatusCode: status,
		Message:    message,
	})
}
