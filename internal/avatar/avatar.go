// Package avatar draws small deterministic pixel avatars.
//
// The same seed always yields the same PNG: a 48x48 transparent image with
// a horizontally mirrored 5x5 grid of cells in one saturated colour.
package avatar

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/rand/v2"
)

const (
	// Size is the edge length of the image in pixels.
	Size = 48

	// Grid is the number of cells per row and column.
	Grid = 5

	cell   = Size / Grid
	margin = (Size - cell*Grid) / 2
)

// Cells returns the filled cells for seed, indexed [row][col].
func Cells(seed string) ([Grid][Grid]bool, color.NRGBA) {
	rng := newRand(seed)

	c := hsl(rng.IntN(361), 70+rng.IntN(31), 40+rng.IntN(21))

	var cells [Grid][Grid]bool
	for y := 0; y < Grid; y++ {
		for x := 0; x < (Grid+1)/2; x++ {
			if rng.Float64() > 0.5 {
				cells[y][x] = true
				cells[y][Grid-1-x] = true
			}
		}
	}
	return cells, c
}

// PNG renders the avatar for seed.
func PNG(seed string) ([]byte, error) {
	cells, c := Cells(seed)

	img := image.NewNRGBA(image.Rect(0, 0, Size, Size))
	fill := image.NewUniform(c)
	for y := 0; y < Grid; y++ {
		for x := 0; x < Grid; x++ {
			if !cells[y][x] {
				continue
			}
			r := image.Rect(margin+x*cell, margin+y*cell, margin+(x+1)*cell, margin+(y+1)*cell)
			draw.Draw(img, r, fill, image.Point{}, draw.Src)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newRand(seed string) *rand.Rand {
	sum := sha256.Sum256([]byte(seed))
	return rand.New(rand.NewPCG(binary.BigEndian.Uint64(sum[:8]), binary.BigEndian.Uint64(sum[8:16])))
}

// hsl converts hue in degrees, saturation and lightness in percent to an
// opaque colour.
func hsl(h, s, l int) color.NRGBA {
	hf := float64(h) / 360
	sf := float64(s) / 100
	lf := float64(l) / 100

	if sf == 0 {
		v := uint8(lf * 255)
		return color.NRGBA{v, v, v, 255}
	}

	var q float64
	if lf < 0.5 {
		q = lf * (1 + sf)
	} else {
		q = lf + sf - lf*sf
	}
	p := 2*lf - q

	return color.NRGBA{
		R: uint8(hueToRGB(p, q, hf+1.0/3) * 255),
		G: uint8(hueToRGB(p, q, hf) * 255),
		B: uint8(hueToRGB(p, q, hf-1.0/3) * 255),
		A: 255,
	}
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 1.0/2:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	default:
		return p
	}
}
