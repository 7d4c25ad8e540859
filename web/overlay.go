package web

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"

	"github.com/avioncargo/precisionland/control"
	"github.com/avioncargo/precisionland/rimage"
)

// Annotate draws the cycle's detections, the tracked marker, and a status block over a copy of the
// snapshot's frame. It returns nil when the snapshot has no frame.
func Annotate(snap control.Snapshot) image.Image {
	if snap.Frame.Empty() {
		return nil
	}
	dc := gg.NewContextForImage(snap.Frame.Image)
	w, h := float64(dc.Width()), float64(dc.Height())

	rimage.DrawCrosshair(dc, r2.Point{X: w / 2, Y: h / 2}, 12, rimage.White, 1)
	for _, d := range snap.Detections {
		c := rimage.Yellow
		if snap.Tracking.Found() && d.ID == snap.Tracking.MarkerID {
			c = rimage.Green
		}
		rimage.DrawQuad(dc, d.Corners, c, 2)
		tl := d.Corners[0]
		rimage.DrawString(dc, fmt.Sprintf("id %d", d.ID), image.Pt(int(tl.X), int(tl.Y)-16), c, 14)
	}
	if snap.Tracking.Found() {
		for _, d := range snap.Detections {
			if d.ID == snap.Tracking.MarkerID {
				rimage.DrawCrosshair(dc, d.Center(), 8, rimage.Red, 2)
				break
			}
		}
	}

	lines := []string{
		fmt.Sprintf("%s  %.1f fps", snap.Tracking.State, snap.Statistics.FPS),
	}
	if g := snap.Tracking.Guidance; g != nil {
		lines = append(lines, fmt.Sprintf("marker %d  dist %.2fm  ax %+.3f  ay %+.3f",
			snap.Tracking.MarkerID, g.Distance, g.AngleX, g.AngleY))
	}
	if snap.Vehicle.Connected {
		lines = append(lines, fmt.Sprintf("%s  %.1fV  sats %d", snap.Vehicle.Mode, snap.Vehicle.BatteryVoltage,
			snap.Vehicle.GPS.Satellites))
	} else {
		lines = append(lines, "vehicle not connected")
	}
	for i, line := range lines {
		rimage.DrawString(dc, line, image.Pt(10, 20+18*i), rimage.White, 14)
	}
	return dc.Image()
}

// downscale fits img to maxWidth, keeping the aspect ratio. Narrower images are returned as is.
func downscale(img image.Image, maxWidth int) image.Image {
	if maxWidth <= 0 || img.Bounds().Dx() <= maxWidth {
		return img
	}
	return imaging.Resize(img, maxWidth, 0, imaging.Linear)
}
