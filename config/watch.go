package config

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch re-reads the config file on change and retunes the runtime-safe
// knobs (currently the connection timeout). Port and path changes require a
// restart and are only logged. Returns a stop function; a no-op when no
// config file is in use.
func (c *Config) Watch(logger *slog.Logger) (func(), error) {
	if c.file == "" {
		return func() {}, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(c.file); err != nil {
		w.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				v, err := newViper(c.file)
				if err != nil {
					logger.Warn("config reload failed", slog.Any("err", err))
					continue
				}
				next := time.Duration(v.GetInt("connection_timeout_ms")) * time.Millisecond
				if next != c.ConnectionTimeout() {
					logger.Info("connection timeout updated",
						slog.Duration("timeout", next))
					c.setConnectionTimeout(next)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", slog.Any("err", err))
			}
		}
	}()
	return func() { w.Close() }, nil
}
