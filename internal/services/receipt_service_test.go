package services

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clubsocios/backend/internal/config"
	"github.com/stretchr/testify/assert"
)

func multipartReceipt(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("receipt", filename)
	assert.NoError(t, err)
	_, err = fw.Write(content)
	assert.NoError(t, err)
	assert.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestReceiptService_Upload(t *testing.T) {
	dir := t.TempDir()
	service := NewReceiptService(&config.BillingConfig{
		ReceiptsDir:     dir,
		ReceiptMaxBytes: 1024,
		QRCodeTimeout:   5 * time.Minute,
	})

	t.Run("stores the file under the member directory", func(t *testing.T) {
		body, contentType := multipartReceipt(t, "comprobante.jpg", []byte("fake image bytes"))

		r := httptest.NewRequest("POST", "/receipts", body)
		r.Header.Set("Content-Type", contentType)
		r = r.WithContext(context.WithValue(r.Context(), "userID", "member1"))
		w := httptest.NewRecorder()

		service.Upload(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		var response map[string]string
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.True(t, strings.HasPrefix(response["proof_url"], "/static/receipts/member1/"))
		assert.True(t, strings.HasSuffix(response["proof_url"], ".jpg"))

		stored, err := os.ReadDir(filepath.Join(dir, "member1"))
		assert.NoError(t, err)
		assert.Len(t, stored, 1)
	})

	t.Run("rejects unsupported extension", func(t *testing.T) {
		body, contentType := multipartReceipt(t, "script.exe", []byte("nope"))

		r := httptest.NewRequest("POST", "/receipts", body)
		r.Header.Set("Content-Type", contentType)
		r = r.WithContext(context.WithValue(r.Context(), "userID", "member1"))
		w := httptest.NewRecorder()

		service.Upload(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects oversized upload", func(t *testing.T) {
		body, contentType := multipartReceipt(t, "grande.pdf", make([]byte, 4096))

		r := httptest.NewRequest("POST", "/receipts", body)
		r.Header.Set("Content-Type", contentType)
		r = r.WithContext(context.WithValue(r.Context(), "userID", "member1"))
		w := httptest.NewRecorder()

		service.Upload(w, r)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		body, contentType := multipartReceipt(t, "comprobante.jpg", []byte("x"))

		r := httptest.NewRequest("POST", "/receipts", body)
		r.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()

		service.Upload(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
