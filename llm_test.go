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
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/duotale/duotale/config"
	"github.com/duotale/duotale/model"
)

const (
	testChatURL   = "https://chat.test/v1/chat/completions"
	testSpeechURL = "https://speech.test/v1/audio/speech"
)

// mockClientConfig installs a configuration pointing the upstream clients at
// test hosts, with a fast retry policy.
func mockClientConfig(t *testing.T) *config.Configuration {
	t.Helper()
	cnf := &config.Configuration{
		Chat: config.ChatConfig{
			Url:        testChatURL,
			ApiKey:     "sk-chat-test",
			Model:      "gpt-4o",
			TimeoutSec: 5,
		},
		Speech: config.SpeechConfig{
			Url:            testSpeechURL,
			ApiKey:         "sk-speech-test",
			Model:          "tts-1",
			PrimaryVoice:   "alloy",
			SecondaryVoice: "nova",
			TimeoutSec:     5,
		},
		Retry: config.RetryConfig{MaxAttempts: 2, BaseDelayMs: 1, MaxIntervalSec: 1},
	}
	config.MockConfig(cnf)
	return cnf
}

func chatCompletionJSON(content string) string {
	payload, _ := json.Marshal(ChatCompletion{
		ID:      "cmpl-1",
		Choices: []ChatChoice{{Message: ChatMessage{Role: "assistant", Content: content}}},
	})
	return string(payload)
}

func TestChatComplete_ReturnsFirstChoice(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	cnf := mockClientConfig(t)

	var got ChatRequest
	httpmock.RegisterResponder(http.MethodPost, testChatURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer sk-chat-test", req.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&got))
			return httpmock.NewStringResponse(http.StatusOK, chatCompletionJSON("  Der Leuchtturm stand still.  ")), nil
		})

	client := NewChatClient(cnf)
	content, err := client.Complete(context.Background(), Prompt{
		System:      "system instruction",
		User:        "user instruction",
		Temperature: 0.9,
	})
	assert.NoError(t, err)
	assert.Equal(t, "Der Leuchtturm stand still.", content)

	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 0.9, got.Temperature)
	assert.Equal(t, []ChatMessage{
		{Role: "system", Content: "system instruction"},
		{Role: "user", Content: "user instruction"},
	}, got.Messages)
}

func TestChatComplete_RetriesTransientFailures(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	cnf := mockClientConfig(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, testChatURL,
		func(_ *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(http.StatusServiceUnavailable, `{}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, chatCompletionJSON("recovered")), nil
		})

	client := NewChatClient(cnf)
	content, err := client.Complete(context.Background(), Prompt{User: "hi"})
	assert.NoError(t, err)
	assert.Equal(t, "recovered", content)
	assert.Equal(t, 2, calls)
}

func TestChatComplete_ProviderRejectionIsPermanent(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	cnf := mockClientConfig(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, testChatURL,
		func(_ *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(http.StatusBadRequest,
				`{"error":{"message":"context too long","type":"invalid_request_error"}}`), nil
		})

	client := NewChatClient(cnf)
	_, err := client.Complete(context.Background(), Prompt{User: "hi"})
	assert.Error(t, err)

	var upstream *model.UpstreamError
	assert.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadRequest, upstream.StatusCode)
	assert.Contains(t, upstream.Message, "context too long")
	assert.Equal(t, 1, calls, "4xx rejections are never retried")
}

func TestChatComplete_EmptyChoicesIsPermanent(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	cnf := mockClientConfig(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, testChatURL,
		func(_ *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(http.StatusOK, `{"id":"cmpl-1","choices":[]}`), nil
		})

	client := NewChatClient(cnf)
	_, err := client.Complete(context.Background(), Prompt{User: "hi"})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestChatRaw_ForwardsBodyVerbatim(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	cnf := mockClientConfig(t)

	raw := `{"id":"cmpl-7","choices":[{"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`
	var got ChatRequest
	httpmock.RegisterResponder(http.MethodPost, testChatURL,
		func(req *http.Request) (*http.Response, error) {
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&got))
			return httpmock.NewStringResponse(http.StatusOK, raw), nil
		})

	client := NewChatClient(cnf)
	body, err := client.Raw(context.Background(), ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})
	assert.NoError(t, err)
	assert.JSONEq(t, raw, string(body))
	assert.Equal(t, "gpt-4o", got.Model, "the configured model fills an empty request")
}

func TestClassifyChatStatus(t *testing.T) {
	assert.NoError(t, classifyChatStatus(http.StatusOK, ""))

	err := classifyChatStatus(http.StatusTooManyRequests, "slow down")
	assert.Error(t, err)
	var upstream *model.UpstreamError
	assert.False(t, errors.As(err, &upstream), "429 is transient, not a provider rejection")

	err = classifyChatStatus(http.StatusUnprocessableEntity, "bad schema")
	assert.ErrorAs(t, err, &upstream)
}
