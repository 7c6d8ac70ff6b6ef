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

	"github.com/gin-gonic/gin"

	"github.com/duotale/duotale"
	"github.com/duotale/duotale/api/middleware"
	model2 "github.com/duotale/duotale/api/model"
)

var audioContentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"opus": "audio/opus",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"wav":  "audio/wav",
}

// Chat proxies a raw chat-completion request to the upstream provider. The
// body passes through untouched apart from retry and error classification,
// so clients can use provider features the lesson pipeline does not.
func (a Api) Chat(c *gin.Context) {
	var req duotale.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages must not be empty"})
		return
	}

	raw, err := a.duotale.Chat().Raw(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}

// Synthesize renders one piece of text to speech and returns the raw audio
// bytes. Repeated requests for the same text, voice and speed are served
// from the clip cache.
func (a Api) Synthesize(c *gin.Context) {
	var req model2.Synthesize
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateSynthesize(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	clip, err := a.duotale.Speech().Synthesize(c.Request.Context(), duotale.SpeechRequest{
		Text:     req.Text,
		Language: req.Language,
		Speed:    req.Speed,
		Voice:    req.Voice,
		Format:   req.Format,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	contentType, ok := audioContentTypes[req.Format]
	if !ok {
		contentType = audioContentTypes["mp3"]
	}
	c.Data(http.StatusOK, contentType, clip)
}

// CreateLesson runs the full generation pipeline for one lesson and blocks
// until the lesson is persisted or the job fails. Credits are reserved when
// the pipeline starts and settled only after the manifest row lands.
//
// Responses:
// - 201 Created: The lesson id, title and any alignment warnings.
// - 402 Payment Required: Not enough credits to reserve the job.
func (a Api) CreateLesson(c *gin.Context) {
	var req model2.CreateLesson
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateCreateLesson(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	result, err := a.pipeline.Run(c.Request.Context(), req.ToLessonRequest(middleware.DeviceID(c)))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// ListLessons returns the lesson manifest, optionally filtered to one
// folder via the folder query parameter.
func (a Api) ListLessons(c *gin.Context) {
	entries, err := a.duotale.GetDataStore().Manifest()
	if err != nil {
		respondError(c, err)
		return
	}

	if folder := c.Query("folder"); folder != "" {
		filtered := entries[:0]
		for _, entry := range entries {
			if entry.Folder == folder {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	c.JSON(http.StatusOK, entries)
}

// GetLesson returns one lesson's metadata and its ordered segment list,
// audio refs included.
func (a Api) GetLesson(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	meta, err := a.duotale.GetDataStore().ReadLessonMetadata(id)
	if err != nil {
		respondError(c, err)
		return
	}
	segments, err := a.duotale.GetDataStore().ReadSegments(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lesson":   meta,
		"segments": segments,
	})
}

// DeleteLesson removes a lesson's folder and manifest row.
func (a Api) DeleteLesson(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	if err := a.duotale.GetDataStore().DeleteLesson(id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "lesson deleted"})
}
