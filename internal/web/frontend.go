package web

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
)

// defaultFrontendDir is where the client build is published, relative to the working directory.
const defaultFrontendDir = "public"

// frontend serves the built client: files under dir as-is, every other page as index.html
// so client-side routes survive a reload.
type frontend struct {
	fsys   fs.FS
	index  []byte
	logger logSDK.Logger
}

// newFrontend loads dir/index.html. A missing directory or index disables hosting.
func newFrontend(dir string, logger logSDK.Logger) (*frontend, error) {
	if dir = strings.TrimSpace(dir); dir == "" {
		dir = defaultFrontendDir
	}

	fsys := os.DirFS(dir)
	index, err := fs.ReadFile(fsys, "index.html")
	if err != nil {
		return nil, errors.Wrapf(err, "read index.html in %q", dir)
	}

	logger.Info("serve frontend", zap.String("dir", dir))
	return &frontend{fsys: fsys, index: index, logger: logger}, nil
}

func (f *frontend) serve(ctx *gin.Context) {
	if ctx.Request.Method != http.MethodGet && ctx.Request.Method != http.MethodHead {
		ctx.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
		return
	}

	// Clean against "/" so ".." can never climb above the root.
	name := strings.TrimPrefix(path.Clean("/"+ctx.Request.URL.Path), "/")
	if name == "" || name == "index.html" {
		f.serveIndex(ctx)
		return
	}

	if info, err := fs.Stat(f.fsys, name); err == nil && !info.IsDir() {
		http.ServeFileFS(ctx.Writer, ctx.Request, f.fsys, name)
		return
	}

	// a missing name with an extension is a broken asset link, not a client route
	if path.Ext(name) != "" {
		f.logger.Debug("frontend asset not found", zap.String("path", name))
		ctx.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	f.serveIndex(ctx)
}

func (f *frontend) serveIndex(ctx *gin.Context) {
	ctx.Header("Cache-Control", "no-store")
	ctx.Data(http.StatusOK, "text/html; charset=utf-8", f.index)
}
