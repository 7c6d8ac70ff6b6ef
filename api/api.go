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
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/typesense/typesense-go/typesense/api"

	"github.com/duotale/duotale/config"
	"github.com/duotale/duotale/internal/apierror"

	"github.com/duotale/duotale/api/middleware"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/duotale/duotale"
	"github.com/duotale/duotale/model"
)

type Api struct {
	duotale      *duotale.Duotale
	pipeline     *duotale.GenerationPipeline
	orchestrator *duotale.SeriesOrchestrator
	router       *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	metered := router.Group("/", middleware.DeviceIdentityMiddleware())
	metered.GET("/credits/balance", a.GetBalance)
	metered.POST("/credits/redeem", a.RedeemCredits)

	metered.POST("/jobs/start", a.StartJob)
	metered.POST("/jobs/commit", a.CommitJob)
	metered.POST("/jobs/cancel", a.CancelJob)

	metered.POST("/chat", a.Chat)
	metered.POST("/tts", a.Synthesize)

	metered.POST("/lessons", a.CreateLesson)
	metered.GET("/lessons", a.ListLessons)
	metered.GET("/lessons/:id", a.GetLesson)
	metered.DELETE("/lessons/:id", a.DeleteLesson)

	metered.POST("/series", a.CreateSeries)
	metered.GET("/series/:id", a.GetSeries)
	metered.POST("/series/:id/parts/:part/retry", a.RetrySeriesPart)
	metered.POST("/series/:id/cancel", a.CancelSeries)

	router.GET("/backup", a.BackupArtifacts)
	router.GET("/backup-s3", a.BackupArtifactsS3)

	router.POST("/search/:collection", a.Search)
	router.POST("/reindex", a.StartReindex)
	router.GET("/reindex/progress", a.GetReindexProgress)
	return a.router
}

func NewAPI(b *duotale.Duotale) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	if conf.EnableTelemetry {
		r.Use(otelgin.Middleware("duotale-server"))
	}
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	r.POST("/webhook", func(c *gin.Context) {
		var payload map[string]interface{}
		err := c.Bind(&payload)
		if err != nil {
			fmt.Println(err)
			return
		}
		fmt.Println(payload)
		c.JSON(200, "webhook received")
	})

	pipeline := duotale.NewGenerationPipeline(b)
	return &Api{
		duotale:      b,
		pipeline:     pipeline,
		orchestrator: duotale.NewSeriesOrchestrator(b, pipeline),
		router:       r,
	}
}

func (a Api) Search(c *gin.Context) {
	collection, passed := c.Params.Get("collection")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection is required. pass id in the route /:collection"})
		return
	}

	var query api.SearchCollectionParams
	err := c.BindJSON(&query)
	if err != nil {
		return
	}

	resp, err := a.duotale.Search(collection, &query)

	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// respondError translates domain errors into the wire shapes clients bind
// against. Insufficient credits always carries the balance snapshot so a
// caller can render what is missing without a second request.
func respondError(c *gin.Context, err error) {
	var insufficient *model.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":    insufficient.Error(),
			"balance":  insufficient.Balance,
			"reserved": insufficient.Reserved,
		})
		return
	}
	if model.IsAuthorizationMismatch(err) {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	var upstream *model.UpstreamError
	if errors.As(err, &upstream) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	}
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}
