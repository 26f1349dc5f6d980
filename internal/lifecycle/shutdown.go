package lifecycle

import (
	"context"
	"errors"
	"log/slog"
)

// ShutdownHook runs when a call job ends. It stops the idle watchdog and,
// if nothing recorded the end yet, writes "System shutdown" directly through
// the store.
type ShutdownHook struct {
	State    *CallState
	Recorder *Recorder
	Watchdog *Task
	Log      *slog.Logger
}

func (h ShutdownHook) Run(ctx context.Context) {
	log := h.Log
	if log == nil {
		log = slog.Default()
	}

	if h.Watchdog != nil {
		h.Watchdog.Stop()
		if err := h.Watchdog.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("idle watchdog failed", "err", err)
		}
	}

	ok, err := h.Recorder.RecordEndNow(ctx, h.State, EndSystemShutdown)
	switch {
	case err != nil:
		log.Error("call end write failed on shutdown", "room", h.State.RoomName(), "err", err)
	case ok:
		log.Info("call end recorded on shutdown", "room", h.State.RoomName())
	}
}
