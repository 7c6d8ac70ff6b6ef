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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/duotale/duotale/api/middleware"
	model2 "github.com/duotale/duotale/api/model"
)

// StartJob reserves credits for one billable job. Passing the same job_id
// again returns the original hold instead of reserving twice.
//
// Responses:
//   - 201 Created: The job id and the balance position after the reservation.
//   - 402 Payment Required: Not enough available credits; body carries the
//     balance snapshot.
func (a Api) StartJob(c *gin.Context) {
	var req model2.StartJob
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateStartJob(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	hold, err := a.duotale.StartHold(c.Request.Context(), middleware.DeviceID(c), req.Amount, req.JobID, ttl)
	if err != nil {
		respondError(c, err)
		return
	}

	balance, err := a.duotale.GetBalance(c.Request.Context(), middleware.DeviceID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"job_id":   hold.HoldID,
		"reserved": balance.Reserved,
		"balance":  balance.Balance,
	})
}

// CommitJob settles a hold: the reserved credits are consumed. Committing a
// hold that is already committed returns the current balance unchanged.
//
// Responses:
// - 200 OK: The balance after settlement.
// - 403 Forbidden: The hold belongs to another device.
// - 404 Not Found: No such hold.
func (a Api) CommitJob(c *gin.Context) {
	var req model2.ResolveJob
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateResolveJob(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	balance, err := a.duotale.CommitHold(c.Request.Context(), middleware.DeviceID(c), req.JobID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":   balance.Balance,
		"reserved":  balance.Reserved,
		"available": balance.Available(),
	})
}

// CancelJob releases a hold: the reserved credits return to the available
// pool. Cancelling a hold that is already cancelled is a no-op.
//
// Responses:
// - 200 OK: The balance after the release.
// - 403 Forbidden: The hold belongs to another device.
// - 404 Not Found: No such hold.
func (a Api) CancelJob(c *gin.Context) {
	var req model2.ResolveJob
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateResolveJob(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	balance, err := a.duotale.CancelHold(c.Request.Context(), middleware.DeviceID(c), req.JobID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":   balance.Balance,
		"reserved":  balance.Reserved,
		"available": balance.Available(),
	})
}
