package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Artifact records where failure evidence landed on disk.
type Artifact struct {
	Screenshot string `json:"screenshot,omitempty"`
	HTML       string `json:"html,omitempty"`
}

// CaptureFailure writes a screenshot and an HTML snapshot for a failed step.
// Capture is best effort: whichever of the two succeeds is recorded, and an
// error is returned only when both fail.
func CaptureFailure(ctx context.Context, drv Driver, dir, label string, log *zap.Logger) (Artifact, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Artifact{}, fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	base := filepath.Join(dir, stamp+"_"+sanitizeLabel(label))

	var art Artifact
	var failures []string

	if png, err := drv.Screenshot(ctx); err != nil {
		failures = append(failures, fmt.Sprintf("screenshot: %v", err))
	} else if err := os.WriteFile(base+".png", png, 0644); err != nil {
		failures = append(failures, fmt.Sprintf("write screenshot: %v", err))
	} else {
		art.Screenshot = base + ".png"
	}

	if html, err := drv.HTML(); err != nil {
		failures = append(failures, fmt.Sprintf("html: %v", err))
	} else if err := os.WriteFile(base+".html", []byte(html), 0644); err != nil {
		failures = append(failures, fmt.Sprintf("write html: %v", err))
	} else {
		art.HTML = base + ".html"
	}

	if art.Screenshot == "" && art.HTML == "" {
		return art, fmt.Errorf("failed to capture artifacts: %s", strings.Join(failures, "; "))
	}
	if len(failures) > 0 {
		log.Warn("partial artifact capture", zap.Strings("failures", failures))
	}
	log.Info("failure artifacts captured",
		zap.String("screenshot", art.Screenshot),
		zap.String("html", art.HTML))
	return art, nil
}

func sanitizeLabel(label string) string {
	if label == "" {
		return "failure"
	}
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
