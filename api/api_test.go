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

package api

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"

	"github.com/duotale/duotale"
	"github.com/duotale/duotale/api/middleware"
	"github.com/duotale/duotale/config"
	"github.com/duotale/duotale/store"
)

const (
	testChatURL   = "https://chat.test/v1/chat/completions"
	testSpeechURL = "https://speech.test/v1/audio/speech"
	testSecretKey = "test-secret"
	testDeviceID  = "device-7"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response != nil && resp.Body.Len() > 0 {
		if err := json.NewDecoder(resp.Body).Decode(s.Response); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func setupRouter(t *testing.T) (*gin.Engine, *duotale.Duotale, error) {
	t.Helper()
	mr := miniredis.RunT(t)
	config.MockConfig(&config.Configuration{
		Redis:  config.RedisConfig{Dns: mr.Addr()},
		Data:   config.DataConfig{Dir: t.TempDir()},
		Server: config.ServerConfig{SecretKey: testSecretKey},
		Queue: config.QueueConfig{
			SeriesQueue:     "duotale:series",
			HoldExpiryQueue: "duotale:hold-expiry",
			IndexQueue:      "duotale:index",
			NumberOfQueues:  1,
		},
		Ledger: config.LedgerConfig{HoldTTLSec: 900, StarterCredits: 10},
		Chat:   config.ChatConfig{Url: testChatURL, ApiKey: "sk-chat-test", Model: "gpt-4o", TimeoutSec: 5},
		Speech: config.SpeechConfig{
			Url:            testSpeechURL,
			ApiKey:         "sk-speech-test",
			Model:          "tts-1",
			PrimaryVoice:   "alloy",
			SecondaryVoice: "nova",
			TimeoutSec:     5,
		},
		Retry:       config.RetryConfig{MaxAttempts: 1, BaseDelayMs: 1, MaxIntervalSec: 1},
		CreditPacks: []config.CreditPack{{Code: "pack.small", Credits: 50, Currency: "USD"}},
	})
	cnf, err := config.Fetch()
	if err != nil {
		return nil, nil, err
	}
	ds, err := store.NewDataStore(cnf)
	if err != nil {
		return nil, nil, err
	}
	newDuotale, err := duotale.NewDuotale(ds)
	if err != nil {
		return nil, nil, err
	}
	router := NewAPI(newDuotale).Router()

	return router, newDuotale, nil
}

func deviceHeader() map[string]string {
	return map[string]string{middleware.DeviceHeader: testDeviceID}
}
