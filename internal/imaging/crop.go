package imaging

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// CropRegion extracts a region of interest from a frame. The returned image
// has its origin at (0, 0); callers add roi.Min back to detected positions.
// An empty roi returns the whole frame.
func CropRegion(img image.Image, roi image.Rectangle) (image.Image, error) {
	bounds := img.Bounds()
	if roi.Empty() {
		return img, nil
	}

	if !roi.In(bounds) {
		return nil, fmt.Errorf("crop region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
			roi.Min.X, roi.Min.Y, roi.Max.X, roi.Max.Y, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	}

	return imaging.Crop(img, roi), nil
}

// ParseRegion parses a region of interest for a frame of the given size.
//
// Accepted forms are "x1,y1,x2,y2" and the named regions "top-left",
// "top-right", "bottom-left", "bottom-right", "top-half", "bottom-half",
// "left-half", "right-half" and "center". An empty string selects the whole
// frame.
func ParseRegion(spec string, w, h int) (image.Rectangle, error) {
	midX := w / 2
	midY := h / 2

	switch spec {
	case "", "full":
		return image.Rect(0, 0, w, h), nil
	case "top-left":
		return image.Rect(0, 0, midX, midY), nil
	case "top-right":
		return image.Rect(midX, 0, w, midY), nil
	case "bottom-left":
		return image.Rect(0, midY, midX, h), nil
	case "bottom-right":
		return image.Rect(midX, midY, w, h), nil
	case "top-half":
		return image.Rect(0, 0, w, midY), nil
	case "bottom-half":
		return image.Rect(0, midY, w, h), nil
	case "left-half":
		return image.Rect(0, 0, midX, h), nil
	case "right-half":
		return image.Rect(midX, 0, w, h), nil
	case "center":
		// Center 50% of the frame
		qW := w / 4
		qH := h / 4
		return image.Rect(qW, qH, w-qW, h-qH), nil
	}

	parts := strings.Split(spec, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("unknown region: %s", spec)
	}
	var c [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("region %q: %w", spec, err)
		}
		c[i] = v
	}
	if c[0] >= c[2] || c[1] >= c[3] {
		return image.Rectangle{}, fmt.Errorf("invalid region %q: x1 must be < x2, y1 must be < y2", spec)
	}
	return image.Rect(c[0], c[1], c[2], c[3]), nil
}
