package mapsource

import (
	"context"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// CheckAccessibility fetches the probe tile of s through provider and reports
// whether it could be read. It never fails: a nil provider, transport errors
// and panics of the provider all count as not accessible. IGN answers some
// authentication failures with an XML exception report, so its probe must
// decode as an image.
func CheckAccessibility(ctx context.Context, provider TileStreamProvider, s Source) (ok bool) {
	if provider == nil {
		return false
	}
	logger := log.WithField("source", s)
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("probe panicked: %v", r)
			ok = false
		}
	}()

	t := s.ProbeTile()
	rc, err := provider.TileStream(ctx, int(t.Z), int(t.X), int(t.Y))
	if err != nil {
		logger.Warnf("probe tile %v: %s", t, err)
		return false
	}
	defer rc.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(rc, head)
	if n == 0 {
		logger.Warnf("probe tile %v is empty: %v", t, err)
		return false
	}
	if s.TileMap().probe == probeImage {
		ct := http.DetectContentType(head[:n])
		if !strings.HasPrefix(ct, "image/") {
			logger.Warnf("probe tile %v is %s, not an image", t, ct)
			return false
		}
	}
	return true
}
