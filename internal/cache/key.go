package cache

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Key identifies one cached tile. Date is the survey date the tile was
// requested for; empty means "latest".
type Key struct {
	Provider string `json:"provider"`
	Z        int    `json:"z"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Date     string `json:"date,omitempty"`
}

// String formats the key as "{provider}:{z}:{x}:{y}[:{date}]".
func (k Key) String() string {
	if k.Date == "" {
		return fmt.Sprintf("%s:%d:%d:%d", k.Provider, k.Z, k.X, k.Y)
	}
	return fmt.Sprintf("%s:%d:%d:%d:%s", k.Provider, k.Z, k.X, k.Y, k.Date)
}

const tileExt = ".img"

// relPath lays tiles out as {provider}/{z}/{x}/{y}[_{date}].img
func (k Key) relPath() string {
	name := strconv.Itoa(k.Y)
	if k.Date != "" {
		date := strings.NewReplacer("/", "-", ":", "-", "_", "-").Replace(k.Date)
		name += "_" + date
	}
	return filepath.Join(k.Provider, strconv.Itoa(k.Z), strconv.Itoa(k.X), name+tileExt)
}

// parseRelPath is the inverse of relPath.
func parseRelPath(rel string) (Key, bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 4 || !strings.HasSuffix(parts[3], tileExt) {
		return Key{}, false
	}

	z, errZ := strconv.Atoi(parts[1])
	x, errX := strconv.Atoi(parts[2])
	if errZ != nil || errX != nil {
		return Key{}, false
	}

	name := strings.TrimSuffix(parts[3], tileExt)
	yPart, date, _ := strings.Cut(name, "_")
	y, err := strconv.Atoi(yPart)
	if err != nil {
		return Key{}, false
	}

	return Key{Provider: parts[0], Z: z, X: x, Y: y, Date: date}, true
}
