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
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	model2 "github.com/duotale/duotale/api/model"
	"github.com/duotale/duotale/model"
)

func seriesPayload(totalParts int) model2.CreateSeries {
	return model2.CreateSeries{
		CreateLesson: model2.CreateLesson{
			Topic:             "a journey across the alps",
			PrimaryLanguage:   "German",
			SecondaryLanguage: "English",
		},
		TotalParts: totalParts,
	}
}

func TestCreateSeries(t *testing.T) {
	router, _, err := setupRouter(t)
	if err != nil {
		t.Fatalf("Failed to setup router: %v", err)
	}

	payloadBytes, _ := json.Marshal(seriesPayload(3))

	var series model.SeriesMetadata
	resp, err := SetUpTestRequest(TestRequest{
		Payload: bytes.NewBuffer(payloadBytes), Response: &series,
		Method: http.MethodPost, Route: "/series", Router: router, Header: deviceHeader(),
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Code)
	assert.NotEmpty(t, series.SeriesID)
	assert.Equal(t, testDeviceID, series.DeviceID)
	assert.Equal(t, model.SeriesPerPart, series.Strategy, "strategy defaults to per-part")
	assert.Equal(t, 3, len(series.Parts))
	for _, part := range series.Parts {
		assert.Equal(t, model.PartPending, part.State)
	}
}

func TestCreateSeriesValidation(t *testing.T) {
	router, _, err := setupRouter(t)
	if err != nil {
		t.Fatalf("Failed to setup router: %v", err)
	}

	single := seriesPayload(1)
	tooMany := seriesPayload(21)
	badStrategy := seriesPayload(3)
	badStrategy.Strategy = "freestyle"
	noTopic := seriesPayload(3)
	noTopic.Topic = ""

	tests := []struct {
		name    string
		payload model2.CreateSeries
	}{
		{name: "Single Part", payload: single},
		{name: "Too Many Parts", payload: tooMany},
		{name: "Unknown Strategy", payload: badStrategy},
		{name: "Missing Topic", payload: noTopic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payloadBytes, _ := json.Marshal(tt.payload)

			var response map[string]interface{}
			resp, err := SetUpTestRequest(TestRequest{
				Payload: bytes.NewBuffer(payloadBytes), Response: &response,
				Method: http.MethodPost, Route: "/series", Router: router, Header: deviceHeader(),
			})
			assert.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestGetSeries(t *testing.T) {
	router, _, err := setupRouter(t)
	if err != nil {
		t.Fatalf("Failed to setup router: %v", err)
	}

	payloadBytes, _ := json.Marshal(seriesPayload(2))
	var created model.SeriesMetadata
	resp, err := SetUpTestRequest(TestRequest{
		Payload: bytes.NewBuffer(payloadBytes), Response: &created,
		Method: http.MethodPost, Route: "/series", Router: router, Header: deviceHeader(),
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Code)

	var fetched model.SeriesMetadata
	resp, err = SetUpTestRequest(TestRequest{
		Response: &fetched,
		Method:   http.MethodGet, Route: "/series/" + created.SeriesID, Router: router, Header: deviceHeader(),
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, created.SeriesID, fetched.SeriesID)

	var missing map[string]interface{}
	resp, err = SetUpTestRequest(TestRequest{
		Response: &missing,
		Method:   http.MethodGet, Route: "/series/ser_missing", Router: router, Header: deviceHeader(),
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRetrySeriesPart(t *testing.T) {
	router, newDuotale, err := setupRouter(t)
	if err != nil {
		t.Fatalf("Failed to setup router: %v", err)
	}

	payloadBytes, _ := json.Marshal(seriesPayload(2))
	var created model.SeriesMetadata
	resp, err := SetUpTestRequest(TestRequest{
		Payload: bytes.NewBuffer(payloadBytes), Response: &created,
		Method: http.MethodPost, Route: "/series", Router: router, Header: deviceHeader(),
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Code)

	// A pending part is not retryable.
	var response map[string]interface{}
	resp, err = SetUpTestRequest(TestRequest{
		Response: &response,
		Method:   http.MethodPost, Route: "/series/" + created.SeriesID + "/parts/2/retry",
		Router: router, Header: deviceHeader(),
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Code)

	// After a failure the part goes back in the queue.
	stored, err := newDuotale.GetDataStore().GetSeries(created.SeriesID)
	assert.NoError(t, err)
	stored.MarkFailed(2, "speech down")
	assert.NoError(t, newDuotale.GetDataStore().SaveSeries(stored))

	var retried model.SeriesMetadata
	resp, err = SetUpTestRequest(TestRequest{
		Response: &retried,
		Method:   http.MethodPost, Route: "/series/" + created.SeriesID + "/parts/2/retry",
		Router: router, Header: deviceHeader(),
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Code)
	assert.Equal(t, model.PartPending, retried.Part(2).State)

	// The part segment of the route must be numeric.
	resp, err = SetUpTestRequest(TestRequest{
		Response: &response,
		Method:   http.MethodPost, Route: "/series/" + created.SeriesID + "/parts/two/retry",
		Router: router, Header: deviceHeader(),
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCancelSeries(t *testing.T) {
	router, _, err := setupRouter(t)
	if err != nil {
		t.Fatalf("Failed to setup router: %v", err)
	}

	payloadBytes, _ := json.Marshal(seriesPayload(3))
	var created model.SeriesMetadata
	resp, err := SetUpTestRequest(TestRequest{
		Payload: bytes.NewBuffer(payloadBytes), Response: &created,
		Method: http.MethodPost, Route: "/series", Router: router, Header: deviceHeader(),
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Code)

	var cancelled model.SeriesMetadata
	resp, err = SetUpTestRequest(TestRequest{
		Response: &cancelled,
		Method:   http.MethodPost, Route: "/series/" + created.SeriesID + "/cancel",
		Router: router, Header: deviceHeader(),
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	for _, part := range cancelled.Parts {
		assert.Equal(t, model.PartCancelled, part.State)
	}

	var missing map[string]interface{}
	resp, err = SetUpTestRequest(TestRequest{
		Response: &missing,
		Method:   http.MethodPost, Route: "/series/ser_missing/cancel",
		Router: router, Header: deviceHeader(),
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
