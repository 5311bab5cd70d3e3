package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/jmylchreest/herbscan-api/internal/identify"
	"github.com/jmylchreest/herbscan-api/internal/service"
)

// Identifier runs plant identification for a user.
type Identifier interface {
	Identify(ctx context.Context, userID string, image []byte, contentType string) (*service.IdentifyResult, error)
	MaxImageBytes() int64
}

// IdentifyRequest is the JSON request body for identification.
type IdentifyRequest struct {
	ImageBase64 string `json:"imageBase64"`
}

// IdentifyHandler accepts an image and returns species candidates.
type IdentifyHandler struct {
	svc    Identifier
	logger *slog.Logger
}

// NewIdentifyHandler creates a new identify handler.
func NewIdentifyHandler(svc Identifier, logger *slog.Logger) *IdentifyHandler {
	return &IdentifyHandler{
		svc:    svc,
		logger: logger.With("component", "identify_handler"),
	}
}

var (
	errMissingImage     = errors.New("missing image")
	errUnsupportedMedia = errors.New("unsupported content type")
	errInvalidImage     = errors.New("invalid image encoding")
)

// HandleIdentify handles POST /api/v1/identify. It is a raw handler because the
// body is either JSON with a base64 image or a multipart upload.
func (h *IdentifyHandler) HandleIdentify(w http.ResponseWriter, r *http.Request) {
	userID := getUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	maxBytes := h.svc.MaxImageBytes()
	tooLarge := fmt.Sprintf("Image size exceeds %dMB limit", maxBytes/(1024*1024))

	// base64 inflates by 4/3; leave room for the envelope
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes*4/3+64*1024)

	image, contentType, err := readImage(r, maxBytes)
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr), errors.Is(err, service.ErrImageTooLarge):
			writeError(w, http.StatusBadRequest, tooLarge)
		case errors.Is(err, errUnsupportedMedia):
			writeError(w, http.StatusBadRequest, "Unsupported content type")
		case errors.Is(err, errMissingImage):
			writeError(w, http.StatusBadRequest, "Missing image")
		default:
			writeError(w, http.StatusBadRequest, "Invalid request body")
		}
		return
	}

	result, err := h.svc.Identify(r.Context(), userID, image, contentType)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrImageTooLarge):
			writeError(w, http.StatusBadRequest, tooLarge)
		case errors.Is(err, identify.ErrProviderUnavailable):
			h.logger.Warn("identification provider unavailable", "user_id", userID, "error", err)
			writeError(w, http.StatusBadGateway, "Identification provider unavailable")
		default:
			h.logger.Error("identification failed", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// readImage extracts the image bytes and their content type from the request.
func readImage(r *http.Request, maxBytes int64) ([]byte, string, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, "", errUnsupportedMedia
	}

	switch mediaType {
	case "application/json":
		var req IdentifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, "", err
		}
		if req.ImageBase64 == "" {
			return nil, "", errMissingImage
		}
		return decodeBase64Image(req.ImageBase64, maxBytes)

	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return nil, "", err
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			return nil, "", errMissingImage
		}
		defer file.Close()

		image, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
		if err != nil {
			return nil, "", err
		}
		if int64(len(image)) > maxBytes {
			return nil, "", service.ErrImageTooLarge
		}
		if len(image) == 0 {
			return nil, "", errMissingImage
		}
		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(image)
		}
		return image, contentType, nil

	default:
		return nil, "", errUnsupportedMedia
	}
}

// decodeBase64Image decodes a raw or data-URI base64 image.
func decodeBase64Image(s string, maxBytes int64) ([]byte, string, error) {
	contentType := ""
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, data, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", errInvalidImage
		}
		contentType, _, _ = strings.Cut(meta, ";")
		s = data
	}

	if int64(base64.StdEncoding.DecodedLen(len(s))) > maxBytes+2 {
		return nil, "", service.ErrImageTooLarge
	}
	image, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", errInvalidImage
	}
	if int64(len(image)) > maxBytes {
		return nil, "", service.ErrImageTooLarge
	}
	if len(image) == 0 {
		return nil, "", errMissingImage
	}
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}
	return image, contentType, nil
}
