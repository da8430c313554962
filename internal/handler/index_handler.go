package handler

import (
	"errors"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragchat/internal/pkg/errcode"
	"github.com/xxxsen/ragchat/internal/pkg/response"
	"github.com/xxxsen/ragchat/internal/service"
)

type IndexHandler struct {
	index           *service.IndexService
	defaultLocation string
	defaultIndex    string
}

func NewIndexHandler(index *service.IndexService, defaultLocation string, defaultIndex string) *IndexHandler {
	return &IndexHandler{index: index, defaultLocation: defaultLocation, defaultIndex: defaultIndex}
}

type reindexRequest struct {
	Location  string `json:"location"`
	IndexName string `json:"index_name"`
}

func (h *IndexHandler) Reindex(c *gin.Context) {
	var req reindexRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	location := firstNonEmpty(req.Location, h.defaultLocation)
	if !withinLocation(h.defaultLocation, location) {
		response.Error(c, errcode.ErrInvalid, "location not allowed")
		return
	}
	indexName := firstNonEmpty(req.IndexName, h.defaultIndex)
	report, err := h.index.Reindex(c.Request.Context(), location, indexName)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}

func (h *IndexHandler) Status(c *gin.Context) {
	name := c.Param("name")
	ok, err := h.index.Exists(c.Request.Context(), name)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"index_name": name, "exists": ok})
}

// withinLocation reports whether loc is root or lies beneath it. Remote
// locations such as s3://bucket/prefix are compared by key prefix.
func withinLocation(root string, loc string) bool {
	root = strings.TrimSpace(root)
	if root == "" {
		return false
	}
	if strings.Contains(root, "://") {
		scheme, rest, _ := strings.Cut(root, "://")
		lscheme, lrest, ok := strings.Cut(loc, "://")
		if !ok || lscheme != scheme {
			return false
		}
		rest = path.Clean("/" + rest)
		lrest = path.Clean("/" + lrest)
		return lrest == rest || strings.HasPrefix(lrest, strings.TrimSuffix(rest, "/")+"/")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absLoc, err := filepath.Abs(loc)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absLoc)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
