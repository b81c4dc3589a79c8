package supplier

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ThumbnailWidth is the width of the preview generated for an uploaded product photo
const ThumbnailWidth = 256

// ErrNameRequired means neither the form nor the file name yields a food name
var ErrNameRequired = errors.New("a food name is required")

// ImageInfo describes a decoded upload
type ImageInfo struct {
	Width           int `json:"width"`
	Height          int `json:"height"`
	ThumbnailWidth  int `json:"thumbnail_width"`
	ThumbnailHeight int `json:"thumbnail_height"`
}

// InspectImage decodes an uploaded image and sizes its thumbnail.
// There is no classifier; the image only has to be a readable picture.
func InspectImage(r io.Reader) (ImageInfo, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	info := ImageInfo{Width: b.Dx(), Height: b.Dy()}

	thumb := img
	if b.Dx() > ThumbnailWidth {
		thumb = imaging.Resize(img, ThumbnailWidth, 0, imaging.Lanczos)
	}
	info.ThumbnailWidth = thumb.Bounds().Dx()
	info.ThumbnailHeight = thumb.Bounds().Dy()

	return info, nil
}

// NameFromUpload picks the food name for an image upload: the explicit form
// value if set, else the file stem with '_' and '-' read as spaces.
func NameFromUpload(formName, filename string) (string, error) {
	if name := strings.Join(strings.Fields(formName), " "); name != "" {
		return name, nil
	}

	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	if name := strings.Join(strings.Fields(stem), " "); name != "" && name != "." {
		return name, nil
	}

	return "", ErrNameRequired
}
