// Package handler implements the read-only status API endpoints.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openjdk/jmerge/pkg/errors"
)

// respondOK writes a successful JSON response.
func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// respondError records the error for the ErrorHandler middleware.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// repoParam reassembles the owner/name pair from the route.
func repoParam(c *gin.Context) string {
	return c.Param("owner") + "/" + c.Param("name")
}

// numberParam parses the PR number from the route.
func numberParam(c *gin.Context) (int, error) {
	n, err := strconv.Atoi(c.Param("number"))
	if err != nil || n <= 0 {
		return 0, errors.ErrValidation("invalid pull request number")
	}
	return n, nil
}
