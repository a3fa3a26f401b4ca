package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shelfchat/shelfchat/internal/pkg/errcode"
	"github.com/shelfchat/shelfchat/internal/pkg/response"
	"github.com/shelfchat/shelfchat/internal/service"
	"github.com/shelfchat/shelfchat/internal/textextract"
)

const maxUploadBytes = 32 << 20

type DocumentHandler struct {
	ingest *service.IngestService
}

func NewDocumentHandler(ingest *service.IngestService) *DocumentHandler {
	return &DocumentHandler{ingest: ingest}
}

type uploadResponse struct {
	Title  string `json:"title"`
	Chunks int    `json:"chunks"`
}

type bytesFile struct {
	*bytes.Reader
}

func (bytesFile) Close() error { return nil }

// Upload accepts a multipart form with a .txt or .md file, an optional
// title (defaults to the file name) and an optional JSON array of concept
// tags to attach to every chunk.
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if file.Size > maxUploadBytes {
		response.Error(c, errcode.ErrInvalidFile, "file too large")
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".txt" && ext != ".md" {
		response.Error(c, errcode.ErrInvalidFile, "only .txt and .md files are supported")
		return
	}

	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	raw, err := io.ReadAll(opened)
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to read file")
		return
	}

	text := string(raw)
	if ext == ".md" {
		text = textextract.MarkdownToText(raw)
	}

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(file.Filename), ext)
	}

	var concepts []string
	if raw := strings.TrimSpace(c.PostForm("concepts")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &concepts); err != nil {
			response.Error(c, errcode.ErrInvalid, "concepts must be a JSON array of strings")
			return
		}
	}

	result, err := h.ingest.Ingest(c.Request.Context(), service.IngestRequest{
		Title:      title,
		Text:       text,
		Concepts:   concepts,
		Raw:        bytesFile{bytes.NewReader(raw)},
		RawSize:    int64(len(raw)),
		ArchiveKey: uuid.NewString() + ext,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, uploadResponse{Title: title, Chunks: result.ChunkCount})
}
