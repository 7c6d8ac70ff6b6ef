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

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/wacul/ptr"

	"github.com/duotale/duotale/config"
)

func serveWithMiddleware(handler gin.HandlerFunc, header map[string]string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handler)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"device": DeviceID(c)})
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for key, value := range header {
		req.Header.Set(key, value)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestDeviceIdentityMiddleware(t *testing.T) {
	resp := serveWithMiddleware(DeviceIdentityMiddleware(), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = serveWithMiddleware(DeviceIdentityMiddleware(), map[string]string{DeviceHeader: "  "})
	assert.Equal(t, http.StatusUnauthorized, resp.Code, "a blank identity is no identity")

	resp = serveWithMiddleware(DeviceIdentityMiddleware(), map[string]string{DeviceHeader: "device-7"})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "device-7", "handlers read the identity from the context")
}

func TestSecretKeyAuthMiddleware(t *testing.T) {
	config.MockConfig(&config.Configuration{
		Server: config.ServerConfig{Secure: true, SecretKey: "test-secret"},
	})

	tests := []struct {
		name         string
		header       map[string]string
		expectedCode int
	}{
		{name: "Missing Key", header: nil, expectedCode: http.StatusUnauthorized},
		{name: "Wrong Key", header: map[string]string{KeyHeader: "wrong"}, expectedCode: http.StatusUnauthorized},
		{name: "Valid Key", header: map[string]string{KeyHeader: "test-secret"}, expectedCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serveWithMiddleware(SecretKeyAuthMiddleware(), tt.header)
			assert.Equal(t, tt.expectedCode, resp.Code)
		})
	}
}

func TestSecretKeyAuthMiddlewareUnconfigured(t *testing.T) {
	config.MockConfig(&config.Configuration{})

	resp := serveWithMiddleware(SecretKeyAuthMiddleware(), map[string]string{KeyHeader: "anything"})
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	conf := &config.Configuration{
		RateLimit: config.RateLimitConfig{
			RequestsPerSecond:  ptr.Float64(1),
			Burst:              ptr.Int(1),
			CleanupIntervalSec: ptr.Int(60),
		},
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(conf))
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pong": true})
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes, http.StatusTooManyRequests, "the burst budget is one request")
}

func TestRateLimitMiddlewareDisabled(t *testing.T) {
	conf := &config.Configuration{}

	resp := serveWithMiddleware(RateLimitMiddleware(conf), nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}
