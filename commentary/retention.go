package commentary

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Prune removes rendered files older than maxAge that no live handle owns.
// These are left behind when a process crashes between render and release.
func (p *Pipeline) Prune(maxAge time.Duration, now time.Time) (int, error) {
	matches, err := filepath.Glob(filepath.Join(p.cfg.TempDir, filePrefix+"*"+fileExt))
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	owned := make(map[string]bool, len(p.files))
	for path := range p.files {
		owned[path] = true
	}
	p.mu.Unlock()

	removed := 0
	for _, m := range matches {
		if owned[m] {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.Remove(m); err == nil {
			removed++
		}
	}
	return removed, nil
}

// RunRetention prunes orphaned files every interval until ctx is done.
func (p *Pipeline) RunRetention(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := p.Prune(maxAge, now)
			if err != nil {
				p.log.Warn("temp audio prune failed", slog.Any("err", err))
				continue
			}
			if n > 0 {
				p.log.Info("pruned orphaned temp audio", slog.Int("files", n))
			}
		}
	}
}
