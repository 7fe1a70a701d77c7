package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// maxCredentialSize bounds the uploaded container. Real PKCS#12 and
// encrypted PEM bundles are a few kilobytes.
const maxCredentialSize = 1 << 20

// UploadCredential receives a multipart form with the certificate
// container, its passphrase and the owning issuer. The container is stored
// as-is: a wrong passphrase only surfaces at the first signing attempt.
func (s *Server) UploadCredential(c *gin.Context) {
	ownerID, err := snowflake.ParseString(strings.TrimSpace(c.PostForm("owner_id")))
	if err != nil || ownerID == 0 {
		AbortWithError(c, newValidationError("owner_id", "invalid_id", "invalid owner id"))
		return
	}

	passphrase := c.PostForm("passphrase")
	if passphrase == "" {
		AbortWithError(c, newValidationError("passphrase", "required", "passphrase is required"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "required", "certificate container is required"))
		return
	}
	if fileHeader.Size > maxCredentialSize {
		AbortWithError(c, newValidationError("file", "too_large", "certificate container too large"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer file.Close()

	container, err := io.ReadAll(io.LimitReader(file, maxCredentialSize+1))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.credentials.Save(c.Request.Context(), ownerID, fileHeader.Filename, container, passphrase); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"owner_id": ownerID.String(),
		"filename": fileHeader.Filename,
	}})
}
