package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed dist/*
var content embed.FS

// Handler serves the embedded admin UI. Paths matching an embedded file are
// served as-is; everything else gets index.html so a bookmarked view still
// loads after a refresh.
func Handler() (http.Handler, error) {
	assets, err := fs.Sub(content, "dist")
	if err != nil {
		return nil, fmt.Errorf("loading embedded web assets: %w", err)
	}
	index, err := fs.ReadFile(assets, "index.html")
	if err != nil {
		return nil, fmt.Errorf("reading embedded index.html: %w", err)
	}
	return &uiHandler{
		assets: assets,
		static: http.FileServer(http.FS(assets)),
		index:  index,
	}, nil
}

type uiHandler struct {
	assets fs.FS
	static http.Handler
	index  []byte
}

func (h *uiHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name != "" && name != "." {
		if _, err := fs.Stat(h.assets, name); err == nil {
			h.static.ServeHTTP(w, r)
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(h.index)
}
