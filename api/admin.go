package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/duotale/duotale/internal/backups"
)

func (a Api) BackupArtifacts(c *gin.Context) {
	err := backups.BackupArtifacts()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, "backup successful")
}

func (a Api) BackupArtifactsS3(c *gin.Context) {
	err := backups.ZipUploadToS3()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, "backup successful")
}
