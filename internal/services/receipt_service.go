package services

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/clubsocios/backend/internal/config"
	"github.com/google/uuid"
)

// ReceiptService stores transfer receipt files on local disk under one
// directory per member. The returned URL is served by the static file
// handler and recorded as the entry's proof_url.
type ReceiptService struct {
	cfg *config.BillingConfig
}

func NewReceiptService(cfg *config.BillingConfig) *ReceiptService {
	return &ReceiptService{cfg: cfg}
}

var allowedReceiptExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".pdf":  true,
}

// Upload stores a receipt file
// @Summary Upload receipt
// @Description Store a transfer receipt (jpg, jpeg, png or pdf) and return its URL
// @Tags receipts
// @Accept multipart/form-data
// @Produce json
// @Param receipt formData file true "Receipt file"
// @Success 201 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Router /receipts [post]
func (s *ReceiptService) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.ReceiptMaxBytes)
	if err := r.ParseMultipartForm(s.cfg.ReceiptMaxBytes); err != nil {
		SendErrorResponse(w, "Receipt exceeds the size limit", http.StatusRequestEntityTooLarge, nil)
		return
	}

	file, header, err := r.FormFile("receipt")
	if err != nil {
		SendErrorResponse(w, "Missing receipt file", http.StatusBadRequest, nil)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedReceiptExts[ext] {
		SendErrorResponse(w, "Only jpg, jpeg, png and pdf receipts are accepted", http.StatusBadRequest, nil)
		return
	}

	dir := filepath.Join(s.cfg.ReceiptsDir, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[RECEIPTS] Directory creation failed: %v", err)
		SendErrorResponse(w, "Failed to store receipt", http.StatusInternalServerError, nil)
		return
	}

	name := uuid.New().String() + ext
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		log.Printf("[RECEIPTS] File creation failed: %v", err)
		SendErrorResponse(w, "Failed to store receipt", http.StatusInternalServerError, nil)
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		log.Printf("[RECEIPTS] Write failed: %v", err)
		SendErrorResponse(w, "Failed to store receipt", http.StatusInternalServerError, nil)
		return
	}

	url := path.Join("/static/receipts", userID, name)
	log.Printf("[RECEIPTS] Receipt stored for member %s: %s", userID, name)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"proof_url": url})
}
