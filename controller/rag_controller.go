package controller

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github/itish2003/docbot/logging"
	"github/itish2003/docbot/models"
	"github/itish2003/docbot/services"
)

// RAGController handles the HTTP requests for the chatbot API. It depends on
// the RAGService to perform the actual work.
type RAGController struct {
	ragService     services.RAGService
	maxUploadBytes int64
	log            *logrus.Entry
}

// NewRAGController creates a new RAGController. maxUploadBytes caps the body
// of a direct upload; zero or less leaves it unbounded.
func NewRAGController(service services.RAGService, maxUploadBytes int64) *RAGController {
	return &RAGController{
		ragService:     service,
		maxUploadBytes: maxUploadBytes,
		log:            logging.For("api"),
	}
}

// Query is the handler for POST /query.
// It binds the question, asks the service for an answer drawn from the
// current index and returns it as the message.
func (c *RAGController) Query(ctx *gin.Context) {
	var req models.QueryRequest

	// A body that does not bind and an empty question are the same mistake.
	if err := ctx.ShouldBindJSON(&req); err != nil || req.QueryInput == "" {
		c.badRequest(ctx, "Missing 'query_input' in the request body")
		return
	}

	// Delegate retrieval and synthesis to the service layer. Each query is
	// independent; nothing from earlier requests is carried over.
	answer, err := c.ragService.Query(ctx.Request.Context(), req.QueryInput)
	if err != nil {
		c.fail(ctx, "Error answering query", err)
		return
	}
	ctx.JSON(http.StatusOK, models.MessageResponse{Message: answer})
}

// UploadWebhook is the handler for POST /upload-webhook.
// The service downloads the URL, checks the file holds text and only then
// moves it into the webhook directory and rebuilds the index.
func (c *RAGController) UploadWebhook(ctx *gin.Context) {
	var req models.UploadWebhookRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.badRequest(ctx, "Missing 'url' in the request body")
		return
	}
	if _, err := c.ragService.AddWebhookFile(ctx.Request.Context(), req.URL, req.FileName); err != nil {
		c.fail(ctx, "Upload failed", err)
		return
	}
	ctx.JSON(http.StatusOK, models.MessageResponse{Message: "Upload successful"})
}

// UploadDirect is the handler for POST /upload-direct. Every multipart part
// named "file" is stored.
func (c *RAGController) UploadDirect(ctx *gin.Context) {
	// 1. Cap the body before the multipart parser spools it to disk.
	if c.maxUploadBytes > 0 {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.maxUploadBytes)
	}

	// 2. Parse the form; an oversized body is reported as such, anything else
	// as a missing file.
	form, err := ctx.MultipartForm()
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		ctx.JSON(http.StatusRequestEntityTooLarge, models.MessageResponse{
			Message: fmt.Sprintf("Upload failed: request body exceeds %d bytes", tooLarge.Limit),
		})
		return
	}
	if err != nil || len(form.File["file"]) == 0 {
		c.badRequest(ctx, "Missing 'file' in the request")
		return
	}

	// 3. Open every part. The service stages and validates them all before
	// anything becomes visible in the upload directory.

	headers := form.File["file"]
	uploads := make([]services.FileUpload, 0, len(headers))
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			c.fail(ctx, "Upload failed", fmt.Errorf("open %s: %w", h.Filename, err))
			return
		}
		opened = append(opened, f)
		uploads = append(uploads, services.FileUpload{Name: h.Filename, Content: f})
	}

	// 4. Store the batch and rebuild once.
	if _, err := c.ragService.AddDirectFiles(ctx.Request.Context(), uploads); err != nil {
		c.fail(ctx, "Upload failed", err)
		return
	}
	ctx.JSON(http.StatusOK, models.MessageResponse{Message: "Upload successful"})
}

// UploadText is the handler for POST /upload-text.
// The text is appended to file_name in the upload directory, which defaults
// to uploaded_text.txt.
func (c *RAGController) UploadText(ctx *gin.Context) {
	var req models.UploadTextRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.badRequest(ctx, "Missing 'text' in the request body")
		return
	}
	if _, err := c.ragService.AppendText(ctx.Request.Context(), req.FileName, req.Text); err != nil {
		c.fail(ctx, "Error uploading text", err)
		return
	}
	ctx.JSON(http.StatusOK, models.MessageResponse{Message: "Text uploaded successfully"})
}

// DeleteUploadFile is the handler for POST /delete-upload-file.
func (c *RAGController) DeleteUploadFile(ctx *gin.Context) {
	c.deleteOne(ctx, services.NamespaceDirect, "File deleted successfully")
}

// DeleteWebhook is the handler for POST /delete-webhook.
func (c *RAGController) DeleteWebhook(ctx *gin.Context) {
	c.deleteOne(ctx, services.NamespaceWebhook, "Webhook file deleted successfully")
}

// DeleteAllUploadFiles is the handler for POST /delete-all-upload-files.
func (c *RAGController) DeleteAllUploadFiles(ctx *gin.Context) {
	c.deleteAll(ctx, services.NamespaceDirect, "All files deleted successfully")
}

// DeleteAllWebhooks is the handler for POST /delete-all-webhooks.
func (c *RAGController) DeleteAllWebhooks(ctx *gin.Context) {
	c.deleteAll(ctx, services.NamespaceWebhook, "All webhook files deleted successfully")
}

// deleteOne removes a single file from ns. A name that does not exist is a
// server error, not a bad request.
func (c *RAGController) deleteOne(ctx *gin.Context, ns services.Namespace, success string) {
	var req models.DeleteFileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.FileName == "" {
		c.badRequest(ctx, "Missing 'file_name' in the request body")
		return
	}
	if err := c.ragService.DeleteFile(ctx.Request.Context(), ns, req.FileName); err != nil {
		c.fail(ctx, "Error deleting file", err)
		return
	}
	ctx.JSON(http.StatusOK, models.MessageResponse{Message: success})
}

// deleteAll empties ns. The placeholder file stays so the directory is never
// seen as empty by the loader.
func (c *RAGController) deleteAll(ctx *gin.Context, ns services.Namespace, success string) {
	if _, err := c.ragService.DeleteAll(ctx.Request.Context(), ns); err != nil {
		c.fail(ctx, "Error deleting files", err)
		return
	}
	ctx.JSON(http.StatusOK, models.MessageResponse{Message: success})
}

// ListFiles is the handler for GET /files.
func (c *RAGController) ListFiles(ctx *gin.Context) {
	listing, err := c.ragService.ListFiles(ctx.Request.Context())
	if err != nil {
		c.fail(ctx, "Error listing files", err)
		return
	}
	ctx.JSON(http.StatusOK, models.MessageResponse{Message: listing})
}

// SaveIndex is the handler for GET /save-index.
// It forces a full rebuild from disk. The previous index keeps serving if the
// rebuild fails.
func (c *RAGController) SaveIndex(ctx *gin.Context) {
	if _, err := c.ragService.Rebuild(ctx.Request.Context()); err != nil {
		c.fail(ctx, "Error saving index", err)
		return
	}
	ctx.JSON(http.StatusOK, models.MessageResponse{Message: "Index saved successfully"})
}

// IndexStatus is the handler for GET /index.
// It reports the manifest of the index that is currently serving queries.
func (c *RAGController) IndexStatus(ctx *gin.Context) {
	manifest, err := c.ragService.IndexStatus(ctx.Request.Context())
	if err != nil {
		c.fail(ctx, "Error loading index", err)
		return
	}
	ctx.JSON(http.StatusOK, models.MessageResponse{Message: manifest})
}

// Health is the unauthenticated liveness probe.
func Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, models.HealthResponse{
		Status:  "healthy",
		Service: "docbot",
		Version: Version,
	})
}

func (c *RAGController) badRequest(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusBadRequest, models.MessageResponse{Message: message})
}

// fail maps a service error onto the response: caller mistakes are 400,
// everything else is 500.
func (c *RAGController) fail(ctx *gin.Context, prefix string, err error) {
	status := http.StatusInternalServerError
	if services.IsValidationError(err) {
		status = http.StatusBadRequest
	}
	entry := c.log.WithError(err).WithField("path", ctx.FullPath())
	if id, ok := ctx.Get(requestIDKey); ok {
		entry = entry.WithField("request_id", id)
	}
	if status == http.StatusInternalServerError && !errors.Is(err, services.ErrNotFound) {
		entry.Error(prefix)
	} else {
		entry.Warn(prefix)
	}
	ctx.JSON(status, models.MessageResponse{Message: fmt.Sprintf("%s: %v", prefix, err)})
}
