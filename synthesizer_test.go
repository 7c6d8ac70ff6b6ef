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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/duotale/duotale/config"
	"github.com/duotale/duotale/model"
)

func TestSpeechRequestCacheKey(t *testing.T) {
	a := SpeechRequest{Text: "Hallo.", Language: "German", Voice: "alloy", Speed: 1.0, Format: "mp3"}
	b := a
	assert.Equal(t, a.CacheKey(), b.CacheKey())

	b.Speed = 0.8
	assert.NotEqual(t, a.CacheKey(), b.CacheKey())
}

func TestSynthesize_RequiresText(t *testing.T) {
	mockClientConfig(t)
	client := NewSpeechClient(mustFetchConfig(t))

	_, err := client.Synthesize(context.Background(), SpeechRequest{})
	assert.Error(t, err)
}

func TestSynthesize_AppliesDefaults(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	cnf := mockClientConfig(t)

	var payload map[string]interface{}
	httpmock.RegisterResponder(http.MethodPost, testSpeechURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer sk-speech-test", req.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
			return httpmock.NewBytesResponse(http.StatusOK, []byte("ID3-audio")), nil
		})

	client := NewSpeechClient(cnf)
	clip, err := client.Synthesize(context.Background(), SpeechRequest{Text: "Hallo Welt.", Language: "German"})
	assert.NoError(t, err)
	assert.Equal(t, []byte("ID3-audio"), clip)

	assert.Equal(t, "tts-1", payload["model"])
	assert.Equal(t, "Hallo Welt.", payload["input"])
	assert.Equal(t, "alloy", payload["voice"], "empty voice falls back to the primary voice")
	assert.Equal(t, 1.0, payload["speed"])
	assert.Equal(t, "mp3", payload["response_format"])
}

func TestSynthesize_ServesRepeatsFromCache(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	mr := miniredis.RunT(t)
	cnf := mockClientConfig(t)
	cnf.Redis = config.RedisConfig{Dns: mr.Addr()}
	config.MockConfig(cnf)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, testSpeechURL,
		func(_ *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewBytesResponse(http.StatusOK, []byte("rendered-once")), nil
		})

	client := NewSpeechClient(cnf)
	req := SpeechRequest{Text: "Hallo Welt.", Language: "German"}

	first, err := client.Synthesize(context.Background(), req)
	assert.NoError(t, err)
	second, err := client.Synthesize(context.Background(), req)
	assert.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls, "the second identical request never reaches the provider")
}

func TestSynthesize_RetriesTransientFailures(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	cnf := mockClientConfig(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, testSpeechURL,
		func(_ *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(http.StatusTooManyRequests, "rate limited"), nil
			}
			return httpmock.NewBytesResponse(http.StatusOK, []byte("audio")), nil
		})

	client := NewSpeechClient(cnf)
	clip, err := client.Synthesize(context.Background(), SpeechRequest{Text: "Hallo."})
	assert.NoError(t, err)
	assert.Equal(t, []byte("audio"), clip)
	assert.Equal(t, 2, calls)
}

func TestSynthesize_ProviderRejectionIsPermanent(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	cnf := mockClientConfig(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, testSpeechURL,
		func(_ *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(http.StatusBadRequest, "unsupported voice"), nil
		})

	client := NewSpeechClient(cnf)
	_, err := client.Synthesize(context.Background(), SpeechRequest{Text: "Hallo."})
	assert.Error(t, err)

	var upstream *model.UpstreamError
	assert.ErrorAs(t, err, &upstream)
	assert.Equal(t, "tts", upstream.Endpoint)
	assert.Contains(t, upstream.Message, "unsupported voice")
	assert.Equal(t, 1, calls)
}

func TestSynthesize_RejectsEmptyAudio(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	cnf := mockClientConfig(t)

	httpmock.RegisterResponder(http.MethodPost, testSpeechURL,
		httpmock.NewBytesResponder(http.StatusOK, nil))

	client := NewSpeechClient(cnf)
	_, err := client.Synthesize(context.Background(), SpeechRequest{Text: "Hallo."})
	assert.Error(t, err)

	var upstream *model.UpstreamError
	assert.ErrorAs(t, err, &upstream)
	assert.Contains(t, upstream.Message, "empty audio")
}

func mustFetchConfig(t *testing.T) *config.Configuration {
	t.Helper()
	cnf, err := config.Fetch()
	assert.NoError(t, err)
	return cnf
}
