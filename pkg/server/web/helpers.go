package web

import (
	"encoding/json"
	"net/http"
	"strings"
)

// RenderJSON sets the correct HTTP headers for JSON, then writes the specified data (typically a
// struct) encoded in JSON.
func RenderJSON(w http.ResponseWriter, data any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Expires", "-1")
	enc := json.NewEncoder(w)
	return enc.Encode(data)
}

// MakePathPrefixer returns a function that prepends basePath to the provided path.  basePath may
// be given with or without leading and trailing slashes.
func MakePathPrefixer(basePath string) func(string) string {
	basePath = strings.Trim(basePath, "/")
	if basePath == "" {
		return func(path string) string { return path }
	}
	basePath = "/" + basePath
	return func(path string) string {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return basePath + path
	}
}
