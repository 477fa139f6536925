package resource

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

var frameExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// SpoolWatcher feeds a FrameBuffer from image files written into a directory
// by a local capture agent.
type SpoolWatcher struct {
	dir     string
	buffer  *FrameBuffer
	watcher *fsnotify.Watcher
	done    chan struct{}
	logger  zerolog.Logger
}

// WatchSpool starts watching dir and attaches the watcher to buffer so that
// closing the buffer stops it.
func WatchSpool(dir string, buffer *FrameBuffer, logger zerolog.Logger) (*SpoolWatcher, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}

	s := &SpoolWatcher{
		dir:     dir,
		buffer:  buffer,
		watcher: watcher,
		done:    make(chan struct{}),
		logger:  logger,
	}
	buffer.mu.Lock()
	buffer.onClose = s.Close
	buffer.mu.Unlock()

	go s.loop()
	return s, nil
}

func (s *SpoolWatcher) loop() {
	defer close(s.done)
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !frameExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			data, err := os.ReadFile(event.Name)
			if err != nil {
				s.logger.Debug().Err(err).Str("file", event.Name).Msg("Frame not readable yet")
				continue
			}
			s.buffer.Set(data)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Str("dir", s.dir).Msg("Frame spool watcher error")
		}
	}
}

// Close stops watching.
func (s *SpoolWatcher) Close() error {
	err := s.watcher.Close()
	<-s.done
	return err
}
