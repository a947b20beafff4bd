package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	http "github.com/valyala/fasthttp"

	"github.com/model-collapse/panoptic-prep/coco"
	"github.com/model-collapse/panoptic-prep/labels"
	"github.com/model-collapse/panoptic-prep/panoptic"
	"github.com/model-collapse/panoptic-prep/pipeline"
	"github.com/model-collapse/panoptic-prep/util"
)

// server exposes the outputs of the datasets found under root. A dataset
// is addressed by the name of its label directory.
type server struct {
	root string
	reg  *labels.Registry
}

func serve(ctx context.Context, root string, reg *labels.Registry) error {
	s := &server{root: root, reg: reg}
	srv := &http.Server{Handler: withLogging(s.handle), Name: "panoptic-prep"}

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(); err != nil {
			util.Logger.Warn("shutdown failed", zap.Error(err))
		}
	}()

	util.Logger.Info("serving", zap.String("addr", GConf.Serve.Addr), zap.String("root", root))
	return srv.ListenAndServe(GConf.Serve.Addr)
}

func withLogging(h http.RequestHandler) http.RequestHandler {
	return func(c *http.RequestCtx) {
		start := time.Now()

		h(c)

		util.Logger.Info("request",
			zap.ByteString("method", c.Method()),
			zap.ByteString("path", c.Path()),
			zap.ByteString("query", c.URI().QueryString()),
			zap.Int("status", c.Response.StatusCode()),
			zap.String("ip", c.RemoteIP().String()),
			zap.Duration("cost", time.Since(start)),
		)
	}
}

func (s *server) handle(c *http.RequestCtx) {
	switch string(c.Path()) {
	case "/health":
		c.SetContentType("application/json")
		fmt.Fprintf(c, `{"status":"ok","version":%q,"variant":%q}`, Version, s.reg.Variant())
	case "/categories":
		s.categories(c)
	case "/annotations":
		s.annotations(c)
	case "/panoptic":
		s.panopticImage(c)
	case "/preview":
		s.preview(c)
	default:
		c.Error("not found", http.StatusNotFound)
	}
}

func (s *server) categories(c *http.RequestCtx) {
	data, err := json.Marshal(coco.Categories(s.reg))
	if err != nil {
		c.Error(err.Error(), http.StatusInternalServerError)
		return
	}
	c.SetContentType("application/json")
	c.Write(data)
}

// layout resolves the set and kind query arguments.
func (s *server) layout(c *http.RequestCtx) (l pipeline.Layout, ok bool) {
	args := c.URI().QueryArgs()
	set := string(args.Peek("set"))
	if set == "" || !filepath.IsLocal(set) || filepath.Base(set) != set {
		c.Error("invalid set", http.StatusBadRequest)
		return
	}

	kind := panoptic.ModePanoptic
	if k := args.Peek("kind"); len(k) > 0 {
		m, err := panoptic.ParseMode(string(k))
		if err != nil {
			c.Error(err.Error(), http.StatusBadRequest)
			return
		}
		kind = m
	}
	return pipeline.LayoutFor(filepath.Join(s.root, set), kind), true
}

// file returns the file query argument if it stays inside its directory.
func file(c *http.RequestCtx) (string, bool) {
	fn := string(c.URI().QueryArgs().Peek("file"))
	if fn == "" || !filepath.IsLocal(filepath.FromSlash(fn)) {
		c.Error("invalid file", http.StatusBadRequest)
		return "", false
	}
	return fn, true
}

func (s *server) annotations(c *http.RequestCtx) {
	l, ok := s.layout(c)
	if !ok {
		return
	}
	c.SetContentType("application/json")
	http.ServeFileUncompressed(c, l.Document)
}

func (s *server) panopticImage(c *http.RequestCtx) {
	l, ok := s.layout(c)
	if !ok {
		return
	}
	fn, ok := file(c)
	if !ok {
		return
	}
	http.ServeFileUncompressed(c, filepath.Join(l.PanopticDir, filepath.FromSlash(coco.PanopticFileName(fn))))
}

// preview renders a label image with the boxes and class names of its
// panoptic segments.
func (s *server) preview(c *http.RequestCtx) {
	l, ok := s.layout(c)
	if !ok {
		return
	}
	fn, ok := file(c)
	if !ok {
		return
	}

	var segs []coco.SegmentInfo
	if string(c.URI().QueryArgs().Peek("box")) == "true" {
		doc, err := coco.LoadPanoptic(l.Document)
		if err != nil {
			util.Logger.Warn("no panoptic document", zap.String("document", l.Document), zap.Error(err))
			c.Error("annotations not found", http.StatusNotFound)
			return
		}
		segs, ok = segmentsOf(doc, fn)
		if !ok {
			c.Error("image not annotated", http.StatusNotFound)
			return
		}
	}

	data, err := renderPreview(filepath.Join(l.Root, filepath.FromSlash(fn)), segs, s.reg)
	if err != nil {
		util.Logger.Error("render failed", zap.String("file", fn), zap.Error(err))
		c.Error(err.Error(), http.StatusNotFound)
		return
	}

	c.SetContentType("image/jpeg")
	c.Write(data)
}

func segmentsOf(doc *coco.PanopticDocument, fileName string) ([]coco.SegmentInfo, bool) {
	for _, img := range doc.Images {
		if img.FileName != fileName {
			continue
		}
		for _, a := range doc.Annotations {
			if a.ImageID == img.ID {
				return a.SegmentsInfo, true
			}
		}
	}
	return nil, false
}
