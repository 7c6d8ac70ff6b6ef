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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/duotale/duotale/api/middleware"
	model2 "github.com/duotale/duotale/api/model"
	"github.com/duotale/duotale/config"
)

// GetBalance returns the calling device's credit record. A device that has
// never been seen gets its starter balance created on first read.
//
// Responses:
// - 200 OK: The balance, reserved total and available amount.
func (a Api) GetBalance(c *gin.Context) {
	balance, err := a.duotale.GetBalance(c.Request.Context(), middleware.DeviceID(c))
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

// RedeemCredits exchanges a signed purchase receipt for a credit grant. The
// signature is an HMAC-SHA256 of the receipt under the server's secret key;
// anything else is rejected before the catalog is consulted.
//
// Responses:
// - 200 OK: The granted amount and the updated balance.
// - 401 Unauthorized: The receipt signature does not verify.
// - 404 Not Found: The product code is not in the catalog.
func (a Api) RedeemCredits(c *gin.Context) {
	var req model2.RedeemCredits
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateRedeemCredits(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	conf, err := config.Fetch()
	if err != nil {
		respondError(c, err)
		return
	}
	if !verifyReceipt(conf.Server.SecretKey, req.Receipt, req.Signature) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Receipt signature does not verify"})
		return
	}

	balance, granted, err := a.duotale.RedeemPack(c.Request.Context(), middleware.DeviceID(c), req.ProductID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"granted":   granted,
		"balance":   balance.Balance,
		"reserved":  balance.Reserved,
		"available": balance.Available(),
	})
}

func verifyReceipt(secretKey, receipt, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(receipt))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
