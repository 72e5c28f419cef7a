package tileserver

import (
	"bytes"
	"image"
	"image/png"
	"net/http"

	"nearmap-compare/internal/tilemath"
)

// transparentTile is served where Nearmap has no imagery so the layer below
// shows through.
var transparentTile = func() []byte {
	var buf bytes.Buffer
	img := image.NewNRGBA(image.Rect(0, 0, tilemath.TileSize, tilemath.TileSize))
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

func serveTransparentTile(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "max-age=3600")
	w.Header().Set("X-Cache-Status", "EMPTY")
	w.Write(transparentTile)
}
