package souldb

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const DefaultAutosaveInterval = 5 * time.Minute

type AutosaveOptions struct {
	// Interval between autosaves. Defaults to DefaultAutosaveInterval.
	Interval time.Duration

	// FadeAfterMs, if positive and not Never, removes records this old before
	// each autosave and on Close.
	FadeAfterMs int64
}

// writer saves snapshots on its own goroutine. Only the newest pending
// snapshot is kept.
type writer struct {
	queue  chan *snapshot
	cancel context.CancelFunc
	done   sync.WaitGroup
	fade   int64
}

// Start launches the background writer and a ticker that fades old records
// and autosaves every opt.Interval. Stop them with Close or by cancelling
// ctx. Calling Start on a running store does nothing.
func (s *Store) Start(ctx context.Context, opt AutosaveOptions) {
	if opt.Interval <= 0 {
		opt.Interval = DefaultAutosaveInterval
	}

	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	if s.writer != nil || s.closed {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w := &writer{
		queue:  make(chan *snapshot, 1),
		cancel: cancel,
		fade:   opt.FadeAfterMs,
	}
	s.writer = w

	w.done.Add(2)
	go func() {
		defer w.done.Done()
		for {
			select {
			case <-ctx.Done():
				s.detach(w)
				return
			case snap := <-w.queue:
				// errors are logged and leave the store dirty
				_ = s.write(snap)
			}
		}
	}()
	go func() {
		defer w.done.Done()
		t := time.NewTicker(opt.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if fades(w.fade) {
					s.Fade(w.fade)
				}
				s.AutoSave()
			}
		}
	}()
}

func fades(ttl int64) bool {
	return ttl > 0 && ttl != Never
}

// AutoSave saves the store if it is dirty. With a running background writer
// the snapshot is handed over to it and AutoSave returns right away;
// otherwise the save happens synchronously.
func (s *Store) AutoSave() {
	if !s.Dirty() {
		return
	}
	snap := s.snapshot()

	s.writerMu.Lock()
	w, closed := s.writer, s.closed
	if w != nil {
		w.submit(snap)
	}
	s.writerMu.Unlock()

	switch {
	case w != nil:
	case closed:
		// Close does the final save
		s.requeueGraves(snap.graves)
	default:
		s.logger.LogAttrs(s.ctx, slog.LevelWarn, "souldb: no background writer, saving synchronously", slog.String("file", s.path))
		_ = s.write(snap)
	}
}

// detach unregisters a stopping writer. Graves of a snapshot it never got
// to write go back to the store.
func (s *Store) detach(w *writer) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	if s.writer == w {
		s.writer = nil
	}
	select {
	case snap := <-w.queue:
		s.requeueGraves(snap.graves)
	default:
	}
}

func (w *writer) submit(snap *snapshot) {
	for {
		select {
		case w.queue <- snap:
			return
		default:
		}
		select {
		case stale := <-w.queue:
			// the newer snapshot has all the records, but not the graves
			snap.graves = append(stale.graves, snap.graves...)
		default:
		}
	}
}

// Close stops the background writer, fades old records one last time and
// saves the store if it's dirty. The store must not be used afterwards.
func (s *Store) Close() error {
	s.writerMu.Lock()
	if s.closed {
		s.writerMu.Unlock()
		return ErrClosed
	}
	s.closed = true
	w := s.writer
	s.writer = nil
	s.writerMu.Unlock()

	if w != nil {
		w.cancel()
		w.done.Wait()
		if fades(w.fade) {
			s.Fade(w.fade)
		}
	}

	if !s.Dirty() && !s.hasGraves() {
		return nil
	}
	return s.Save()
}

func (s *Store) requeueGraves(graves []Grave) {
	if len(graves) == 0 {
		return
	}
	s.tableMu.Lock()
	s.graves = append(graves, s.graves...)
	s.tableMu.Unlock()
}

func (s *Store) hasGraves() bool {
	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	return len(s.graves) > 0
}
