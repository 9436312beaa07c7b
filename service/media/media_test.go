package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudguard-labs/fraudguard/util"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 64 {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func decodeResult(t *testing.T, encoded string) image.Image {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestEncodeJPEG(t *testing.T) {
	t.Run("small images keep their size", func(t *testing.T) {
		encoded, err := EncodeJPEG("test://small", encodePNG(t, 640, 480))
		require.NoError(t, err)

		img := decodeResult(t, encoded)
		assert.Equal(t, 640, img.Bounds().Dx())
		assert.Equal(t, 480, img.Bounds().Dy())
	})

	t.Run("large images scale down preserving aspect", func(t *testing.T) {
		encoded, err := EncodeJPEG("test://wide", encodePNG(t, 2048, 1024))
		require.NoError(t, err)

		img := decodeResult(t, encoded)
		assert.Equal(t, 1024, img.Bounds().Dx())
		assert.Equal(t, 512, img.Bounds().Dy())
	})

	t.Run("tall images scale on the long edge", func(t *testing.T) {
		encoded, err := EncodeJPEG("test://tall", encodePNG(t, 500, 2000))
		require.NoError(t, err)

		img := decodeResult(t, encoded)
		assert.Equal(t, 256, img.Bounds().Dx())
		assert.Equal(t, 1024, img.Bounds().Dy())
	})

	t.Run("undecodable bytes are rejected", func(t *testing.T) {
		_, err := EncodeJPEG("test://garbage", []byte("definitely not an image"))
		var unsupported ErrUnsupportedImage
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, "test://garbage", unsupported.URL)
	})
}

func TestFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("downloads the body", func(t *testing.T) {
		payload := encodePNG(t, 64, 64)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(payload)
		}))
		defer srv.Close()

		data, err := Fetch(ctx, srv.URL)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	})

	t.Run("non-200 status is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer srv.Close()

		_, err := Fetch(ctx, srv.URL)
		var httpErr util.ErrHTTP
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusNotFound, httpErr.Status)
		assert.Equal(t, srv.URL, httpErr.URL)
	})

	t.Run("oversized body is rejected", func(t *testing.T) {
		viper.Set("MAX_IMAGE_SIZE_MB", 1)
		defer viper.Set("MAX_IMAGE_SIZE_MB", 0)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(make([]byte, (1<<20)+16))
		}))
		defer srv.Close()

		_, err := Fetch(ctx, srv.URL)
		var tooLarge ErrImageTooLarge
		assert.ErrorAs(t, err, &tooLarge)
	})
}

func TestFetchAsJPEG(t *testing.T) {
	payload := encodePNG(t, 64, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	encoded, err := FetchAsJPEG(context.Background(), srv.URL)
	require.NoError(t, err)

	img := decodeResult(t, encoded)
	assert.Equal(t, 64, img.Bounds().Dx())
}
