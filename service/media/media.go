package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/fraudguard-labs/fraudguard/env"
	"github.com/fraudguard-labs/fraudguard/service/logger"
	"github.com/fraudguard-labs/fraudguard/util"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	// register decoders
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	fetchTimeout = 30 * time.Second

	// maxDimension is the longest edge sent to the vision model
	maxDimension = 1024

	jpegQuality = 85
)

// ErrUnsupportedImage is returned when the fetched bytes cannot be decoded
// by any registered format.
type ErrUnsupportedImage struct {
	URL string
	Err error
}

func (e ErrUnsupportedImage) Error() string {
	return fmt.Sprintf("unsupported image at %s: %s", e.URL, e.Err)
}

func (e ErrUnsupportedImage) Unwrap() error {
	return e.Err
}

// ErrImageTooLarge is returned when the image exceeds the configured size cap
type ErrImageTooLarge struct {
	URL  string
	Size int64
}

func (e ErrImageTooLarge) Error() string {
	return fmt.Sprintf("image at %s is too large: %d bytes", e.URL, e.Size)
}

var defaultClient = &http.Client{Timeout: fetchTimeout}

func maxBytes(ctx context.Context) int64 {
	mb := env.GetInt(ctx, "MAX_IMAGE_SIZE_MB")
	if mb <= 0 {
		mb = 10
	}
	return int64(mb) << 20
}

// Fetch downloads the image at the given URL, enforcing the configured size cap
func Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := defaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching image at %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, util.ErrHTTP{URL: url, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status fetching image")}
	}

	limit := maxBytes(ctx)
	if resp.ContentLength > limit {
		return nil, ErrImageTooLarge{URL: url, Size: resp.ContentLength}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, errors.Wrapf(err, "reading image at %s", url)
	}
	if int64(len(data)) > limit {
		return nil, ErrImageTooLarge{URL: url, Size: int64(len(data))}
	}

	return data, nil
}

// EncodeJPEG normalizes arbitrary image bytes into a base64 JPEG no larger
// than maxDimension on its longest edge. Alpha is flattened by the JPEG
// encoder; animated inputs keep their first frame.
func EncodeJPEG(url string, data []byte) (string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", ErrUnsupportedImage{URL: url, Err: err}
	}

	img = scaleDown(img)

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", errors.Wrapf(err, "encoding %s image at %s", format, url)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// FetchAsJPEG fetches and normalizes an image in one step
func FetchAsJPEG(ctx context.Context, url string) (string, error) {
	data, err := Fetch(ctx, url)
	if err != nil {
		return "", err
	}

	encoded, err := EncodeJPEG(url, data)
	if err != nil {
		return "", err
	}

	logger.For(ctx).Debugf("normalized image at %s: %d bytes in, %d base64 out", url, len(data), len(encoded))
	return encoded, nil
}

func scaleDown(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDimension && h <= maxDimension {
		return img
	}

	if w > h {
		h = h * maxDimension / w
		w = maxDimension
	} else {
		w = w * maxDimension / h
		h = maxDimension
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
