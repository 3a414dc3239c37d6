package middleware

import (
	"compress/gzip"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestBody caps payment API payloads after decompression.
const MaxRequestBody int64 = 1 << 20

// DecompressRequest inflates gzip encoded bodies and bounds every body to MaxRequestBody.
func DecompressRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}

		if !strings.Contains(c.GetHeader("Content-Encoding"), "gzip") {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBody)
			c.Next()
			return
		}

		compressed := c.Request.Body
		inflated, err := gzip.NewReader(compressed)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"kind": "validation_error", "message": "malformed gzip body"},
			})
			return
		}
		defer compressed.Close()

		c.Request.Body = http.MaxBytesReader(c.Writer, inflated, MaxRequestBody)
		c.Request.Header.Del("Content-Encoding")
		c.Request.ContentLength = -1
		c.Next()
	}
}
