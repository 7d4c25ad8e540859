package web

import (
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/avioncargo/precisionland/components/camera"
	"github.com/avioncargo/precisionland/control"
	"github.com/avioncargo/precisionland/guidance"
	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/movement"
	"github.com/avioncargo/precisionland/movement/store"
	"github.com/avioncargo/precisionland/observer"
	"github.com/avioncargo/precisionland/vision/marker"
)

type fakeLoop struct {
	mu        sync.Mutex
	running   bool
	latest    control.Snapshot
	hasLatest bool
	movements *movement.Log
	bus       *observer.Bus[control.Snapshot]
}

func newFakeLoop(t *testing.T) *fakeLoop {
	return &fakeLoop{
		movements: movement.NewLog(10),
		bus:       observer.NewBus[control.Snapshot](logging.NewTestLogger(t)),
	}
}

func (l *fakeLoop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return control.ErrAlreadyRunning
	}
	l.running = true
	return nil
}

func (l *fakeLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
}

func (l *fakeLoop) State() control.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return control.Running
	}
	return control.Stopped
}

func (l *fakeLoop) RunID() string { return "run-a" }

func (l *fakeLoop) Latest() (control.Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest, l.hasLatest
}

func (l *fakeLoop) Statistics() control.Statistics { return control.Statistics{Frames: 12} }

func (l *fakeLoop) Movements() *movement.Log { return l.movements }

func (l *fakeLoop) Bus() *observer.Bus[control.Snapshot] { return l.bus }

func (l *fakeLoop) setLatest(s control.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latest, l.hasLatest = s, true
}

func snapshot() control.Snapshot {
	corners := [4]r2.Point{{X: 600, Y: 300}, {X: 680, Y: 300}, {X: 680, Y: 380}, {X: 600, Y: 380}}
	return control.Snapshot{
		RunID:      "run-a",
		Sequence:   1,
		Timestamp:  time.Unix(1700000000, 0),
		Frame:      camera.Frame{Image: image.NewRGBA(image.Rect(0, 0, 1280, 720)), CapturedAt: time.Unix(1700000000, 0)},
		Detections: []marker.Detection{{ID: 7, Corners: corners}, {ID: 3, Corners: corners}},
		Tracking: control.Tracking{
			State:    control.Detected,
			MarkerID: 7,
			Guidance: &guidance.Triple{AngleX: 0.1, AngleY: 0.2, Distance: 1.2},
		},
	}
}

func newTestServer(t *testing.T, loop Loop, st MovementStore) *httptest.Server {
	t.Helper()
	srv, err := NewServer(DefaultConfig(), loop, st, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	test.That(t, json.NewDecoder(resp.Body).Decode(v), test.ShouldBeNil)
	return resp.StatusCode
}

func post(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestConfigValidate(t *testing.T) {
	test.That(t, DefaultConfig().Validate("web"), test.ShouldBeNil)

	cfg := DefaultConfig()
	cfg.Listen = "8200"
	test.That(t, cfg.Validate("web"), test.ShouldNotBeNil)

	cfg = DefaultConfig()
	cfg.JPEGQuality = 0
	test.That(t, cfg.Validate("web"), test.ShouldNotBeNil)

	cfg.Disabled = true
	test.That(t, cfg.Validate("web"), test.ShouldBeNil)

	_, err := NewServer(DefaultConfig(), nil, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestStatusAndLoopControl(t *testing.T) {
	loop := newFakeLoop(t)
	ts := newTestServer(t, loop, nil)

	var status Status
	test.That(t, getJSON(t, ts.URL+"/api/status", &status), test.ShouldEqual, http.StatusOK)
	test.That(t, status.State, test.ShouldEqual, control.Stopped)
	test.That(t, status.Latest, test.ShouldBeNil)
	test.That(t, status.Statistics.Frames, test.ShouldEqual, uint64(12))

	test.That(t, post(t, ts.URL+"/api/loop/start"), test.ShouldEqual, http.StatusOK)
	test.That(t, post(t, ts.URL+"/api/loop/start"), test.ShouldEqual, http.StatusConflict)
	test.That(t, loop.State(), test.ShouldEqual, control.Running)

	loop.setLatest(snapshot())
	test.That(t, getJSON(t, ts.URL+"/api/status", &status), test.ShouldEqual, http.StatusOK)
	test.That(t, status.State, test.ShouldEqual, control.Running)
	test.That(t, status.Latest, test.ShouldNotBeNil)
	test.That(t, status.Latest.Tracking.MarkerID, test.ShouldEqual, 7)

	test.That(t, post(t, ts.URL+"/api/loop/stop"), test.ShouldEqual, http.StatusOK)
	test.That(t, loop.State(), test.ShouldEqual, control.Stopped)

	resp, err := http.Get(ts.URL + "/api/loop/stop")
	test.That(t, err, test.ShouldBeNil)
	resp.Body.Close()
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusNotFound)
}

func TestMovements(t *testing.T) {
	ctx := context.Background()
	loop := newFakeLoop(t)
	base := time.Unix(1700000000, 0)
	for i := 0; i < 4; i++ {
		loop.movements.Append(movement.Event{
			Type:      movement.TypeTracked,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			MarkerID:  7,
			Distance:  float64(i),
		})
	}
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "movements.db"), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, st.Close(), test.ShouldBeNil)
	}()
	test.That(t, st.Insert(ctx, "run-a", loop.movements.All()[0]), test.ShouldBeNil)
	ts := newTestServer(t, loop, st)

	var events []movement.Event
	test.That(t, getJSON(t, ts.URL+"/api/movements", &events), test.ShouldEqual, http.StatusOK)
	test.That(t, events, test.ShouldHaveLength, 4)

	test.That(t, getJSON(t, ts.URL+"/api/movements?n=2", &events), test.ShouldEqual, http.StatusOK)
	test.That(t, events, test.ShouldHaveLength, 2)
	test.That(t, events[1].Distance, test.ShouldEqual, 3.0)

	var failure map[string]string
	test.That(t, getJSON(t, ts.URL+"/api/movements?n=many", &failure), test.ShouldEqual, http.StatusBadRequest)
	test.That(t, failure["error"], test.ShouldContainSubstring, "non-negative integer")

	var stats MovementStats
	test.That(t, getJSON(t, ts.URL+"/api/movements/stats", &stats), test.ShouldEqual, http.StatusOK)
	test.That(t, stats.Count, test.ShouldEqual, 4)
	test.That(t, stats.Capacity, test.ShouldEqual, 10)
	test.That(t, stats.ByType[movement.TypeTracked], test.ShouldEqual, 4)
	test.That(t, stats.Recorded, test.ShouldNotBeNil)
	test.That(t, stats.Recorded.Total, test.ShouldEqual, 1)

	var records []store.Record
	test.That(t, getJSON(t, ts.URL+"/api/movements/history", &records), test.ShouldEqual, http.StatusOK)
	test.That(t, records, test.ShouldHaveLength, 1)
	test.That(t, records[0].RunID, test.ShouldEqual, "run-a")

	noStore := newTestServer(t, newFakeLoop(t), nil)
	test.That(t, getJSON(t, noStore.URL+"/api/movements/history", &failure), test.ShouldEqual, http.StatusNotFound)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, newFakeLoop(t), nil)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/status", nil)
	test.That(t, err, test.ShouldBeNil)
	req.Header.Set("Origin", "http://ground-station.local")
	resp, err := http.DefaultClient.Do(req)
	test.That(t, err, test.ShouldBeNil)
	resp.Body.Close()
	test.That(t, resp.Header.Get("Access-Control-Allow-Origin"), test.ShouldEqual, "*")
}

func TestSnapshotJPEG(t *testing.T) {
	loop := newFakeLoop(t)
	ts := newTestServer(t, loop, nil)

	resp, err := http.Get(ts.URL + "/snapshot.jpg")
	test.That(t, err, test.ShouldBeNil)
	resp.Body.Close()
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusServiceUnavailable)

	loop.setLatest(snapshot())
	resp, err = http.Get(ts.URL + "/snapshot.jpg")
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	test.That(t, resp.Header.Get("Content-Type"), test.ShouldEqual, "image/jpeg")
	img, err := jpeg.Decode(resp.Body)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 640)
	test.That(t, img.Bounds().Dy(), test.ShouldEqual, 360)
}

func TestStream(t *testing.T) {
	loop := newFakeLoop(t)
	ts := newTestServer(t, loop, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream.mjpeg", nil)
	test.That(t, err, test.ShouldBeNil)
	resp, err := http.DefaultClient.Do(req)
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	test.That(t, resp.Header.Get("Content-Type"), test.ShouldStartWith, "multipart/x-mixed-replace")

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, loop.bus.Len(), test.ShouldEqual, 1)
	})
	loop.bus.Publish(ctx, control.Snapshot{RunID: "run-a"})
	loop.bus.Publish(ctx, snapshot())

	part, err := multipart.NewReader(resp.Body, boundary).NextPart()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, part.Header.Get("Content-Type"), test.ShouldEqual, "image/jpeg")
	img, err := jpeg.Decode(part)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 640)

	cancel()
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, loop.bus.Len(), test.ShouldEqual, 0)
	})
}

func TestStartAndClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	srv, err := NewServer(cfg, newFakeLoop(t), nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, srv.Addr(), test.ShouldBeNil)
	test.That(t, srv.Close(context.Background()), test.ShouldBeNil)

	test.That(t, srv.Start(context.Background()), test.ShouldBeNil)
	test.That(t, srv.Start(context.Background()), test.ShouldNotBeNil)
	addr := srv.Addr().String()
	test.That(t, strings.HasPrefix(addr, "127.0.0.1:"), test.ShouldBeTrue)

	resp, err := http.Get("http://" + addr + "/api/status")
	test.That(t, err, test.ShouldBeNil)
	resp.Body.Close()
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	test.That(t, srv.Close(ctx), test.ShouldBeNil)
	test.That(t, srv.Addr(), test.ShouldBeNil)
}

func TestAnnotate(t *testing.T) {
	test.That(t, Annotate(control.Snapshot{}), test.ShouldBeNil)

	snap := snapshot()
	img := Annotate(snap)
	test.That(t, img, test.ShouldNotBeNil)
	test.That(t, img.Bounds(), test.ShouldResemble, snap.Frame.Image.Bounds())
	// quad outline
	_, g, _, _ := img.At(640, 300).RGBA()
	test.That(t, g>>8, test.ShouldBeGreaterThan, 100)
	// source frame untouched
	_, _, _, a := snap.Frame.Image.At(640, 300).RGBA()
	test.That(t, a, test.ShouldEqual, uint32(0))
}
