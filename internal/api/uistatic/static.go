package uistatic

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"
)

//go:embed all:app
var appFS embed.FS

// Handler serves the chat page and its assets. Paths without a file extension
// fall back to the chat page so client-side links survive a reload. A missing
// asset is a 404.
func Handler() http.Handler {
	files, err := fs.Sub(appFS, "app")
	if err != nil {
		return http.NotFoundHandler()
	}
	page, err := fs.ReadFile(files, "index.html")
	if err != nil {
		return http.NotFoundHandler()
	}
	assets := http.FileServer(http.FS(files))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		switch {
		case name == "." || name == "index.html":
			servePage(w, r, page)
		case isFile(files, name):
			assets.ServeHTTP(w, r)
		case path.Ext(name) != "":
			http.NotFound(w, r)
		default:
			servePage(w, r, page)
		}
	})
}

func isFile(files fs.FS, name string) bool {
	info, err := fs.Stat(files, name)
	return err == nil && !info.IsDir()
}

// The page embeds no version, so browsers must revalidate it after an upgrade.
func servePage(w http.ResponseWriter, r *http.Request, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "index.html", time.Time{}, bytes.NewReader(page))
}
