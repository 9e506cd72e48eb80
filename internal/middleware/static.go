package middleware

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const missingReceiptSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 200"><rect width="200" height="200" fill="#f0f0f0"/><path d="M70 40h60v120H70z" fill="none" stroke="#999" stroke-width="6"/><path d="M80 70h40M80 90h40M80 110h25" stroke="#999" stroke-width="5"/><text x="100" y="180" text-anchor="middle" font-family="Arial" font-size="14" fill="#666">RECIBO</text></svg>`

// StaticFileServer serves uploaded receipt files. Missing files get a
// placeholder instead of a 404 so old statement rows keep rendering after
// a receipt is cleaned up.
func StaticFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clean := filepath.Clean("/" + r.URL.Path)
		if strings.Contains(clean, "..") {
			http.Error(w, "Invalid path", http.StatusBadRequest)
			return
		}
		path := filepath.Join(dir, clean)

		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			if strings.EqualFold(filepath.Ext(path), ".pdf") {
				w.Header().Set("Content-Type", "application/pdf")
			}
			w.Header().Set("Cache-Control", "private, max-age=2592000")
			http.ServeFile(w, r, path)
			return
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(missingReceiptSVG))
	})
}
