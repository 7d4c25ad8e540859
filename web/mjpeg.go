package web

import (
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/pkg/errors"

	"github.com/avioncargo/precisionland/control"
	"github.com/avioncargo/precisionland/observer"
)

const boundary = "frame"

func (s *Server) jpegOptions() *jpeg.Options {
	return &jpeg.Options{Quality: s.cfg.JPEGQuality}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.loop.Latest()
	img := Annotate(snap)
	if !ok || img == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("no frame yet"))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	if err := jpeg.Encode(w, downscale(img, s.cfg.MaxWidth), s.jpegOptions()); err != nil {
		s.logger.Debugw("error encoding jpeg", "error", err)
	}
}

// handleStream pushes every snapshot the client can keep up with. Each client has its own
// mailbox, so a slow client skips frames without slowing the loop or other clients.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming is not supported"))
		return
	}

	latest := observer.NewLatest[control.Snapshot]()
	bus := s.loop.Bus()
	if err := bus.Subscribe(latest); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer bus.Unsubscribe(latest)

	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Debugw("stream client connected", "remote", r.RemoteAddr)
	defer func() {
		s.logger.Debugw("stream client disconnected", "remote", r.RemoteAddr, "skipped", latest.Dropped())
	}()

	header := textproto.MIMEHeader{"Content-Type": {"image/jpeg"}}
	for {
		snap, err := latest.Next(r.Context())
		if err != nil {
			return
		}
		img := Annotate(snap)
		if img == nil {
			continue
		}
		part, err := mw.CreatePart(header)
		if err != nil {
			return
		}
		if err := jpeg.Encode(part, downscale(img, s.cfg.MaxWidth), s.jpegOptions()); err != nil {
			return
		}
		flusher.Flush()
	}
}
