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
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/duotale/duotale/api/middleware"
	model2 "github.com/duotale/duotale/api/model"
	"github.com/duotale/duotale/model"
)

// CreateSeries accepts a multi-part lesson job and queues its first part.
// Generation is asynchronous: the response carries the series record whose
// parts clients poll or watch through webhooks.
//
// Responses:
// - 202 Accepted: The series with all parts pending.
func (a Api) CreateSeries(c *gin.Context) {
	var req model2.CreateSeries
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateCreateSeries(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	series, err := a.orchestrator.StartSeries(
		c.Request.Context(),
		req.ToLessonRequest(middleware.DeviceID(c)),
		req.TotalParts,
		model.SeriesStrategy(req.Strategy),
		req.Outline,
	)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, series)
}

// GetSeries returns a series record with the current state of every part.
func (a Api) GetSeries(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	series, err := a.orchestrator.GetSeries(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, series)
}

// RetrySeriesPart resets a failed part to pending and re-queues it.
//
// Responses:
// - 202 Accepted: The series with the part back in flight.
// - 409 Conflict: The part is not in a retryable state.
func (a Api) RetrySeriesPart(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}
	part, err := strconv.Atoi(c.Param("part"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "part must be a number"})
		return
	}

	series, err := a.orchestrator.RetryPart(c.Request.Context(), id, part)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, series)
}

// CancelSeries stops a running series. The part generating right now is
// interrupted; everything still pending is marked cancelled. Credits held
// for unproduced parts are released by the running job's cleanup.
func (a Api) CancelSeries(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	series, err := a.orchestrator.Cancel(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, series)
}
