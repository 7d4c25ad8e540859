// Package rimage holds the drawing helpers used to annotate frames.
package rimage

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/golang/geo/r2"
	"golang.org/x/image/font/gofont/goregular"
)

var font *truetype.Font

// init sets up the fonts we want to use.
func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Font returns the font we use for drawing.
func Font() *truetype.Font {
	return font
}

// Common annotation colors.
var (
	Red    = color.NRGBA{R: 255, A: 255}
	Green  = color.NRGBA{G: 200, A: 255}
	Yellow = color.NRGBA{R: 255, G: 220, A: 255}
	Black  = color.NRGBA{A: 255}
	White  = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// DrawString writes a string to the given context at a particular point.
func DrawString(dc *gg.Context, text string, p image.Point, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(Font(), &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawStringWrapped(text, float64(p.X), float64(p.Y), 0, 0, float64(dc.Width()), 1, 0)
}

// FillQuad fills the polygon through the four points.
func FillQuad(dc *gg.Context, pts [4]r2.Point, c color.Color) {
	dc.SetColor(c)
	quadPath(dc, pts)
	dc.Fill()
}

// DrawQuad outlines the polygon through the four points.
func DrawQuad(dc *gg.Context, pts [4]r2.Point, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	quadPath(dc, pts)
	dc.Stroke()
}

func quadPath(dc *gg.Context, pts [4]r2.Point) {
	dc.NewSubPath()
	dc.MoveTo(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		dc.LineTo(p.X, p.Y)
	}
	dc.ClosePath()
}

// DrawCrosshair marks a point with a cross of the given half size.
func DrawCrosshair(dc *gg.Context, p r2.Point, size float64, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawLine(p.X-size, p.Y, p.X+size, p.Y)
	dc.Stroke()
	dc.DrawLine(p.X, p.Y-size, p.X, p.Y+size)
	dc.Stroke()
}

// Lerp interpolates between two points.
func Lerp(a, b r2.Point, t float64) r2.Point {
	return a.Add(b.Sub(a).Mul(t))
}
