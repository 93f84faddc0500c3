package beacon

import (
	"github.com/penshort/beacon/internal/model"
	"github.com/penshort/beacon/internal/storage"
)

// DeviceID returns the current device id.
func (i *Instance) DeviceID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.deviceID
}

// ChangeID switches the device id. Queued events are flushed under the old
// id first. With merge the collector folds the old profile into the new
// one and consent is kept. Without merge the old session ends, consent is
// reset and a new session begins under the new id.
func (i *Instance) ChangeID(newID string, merge bool) {
	if i.isClosed() || newID == "" {
		return
	}
	ctx := i.ctx
	old := i.DeviceID()
	if newID == old {
		return
	}

	i.flush(ctx)

	if merge {
		i.setDeviceID(newID)
		req := i.newRequest(model.KindChangeID, map[string]string{model.ParamOldDeviceID: old})
		i.enqueue(ctx, req)
		i.logger.Info("device id changed", "merge", true)
		i.kick()
		return
	}

	i.endSession(ctx)
	i.setDeviceID(newID)
	i.consent.Reset(ctx)

	i.mu.Lock()
	i.timed = make(map[string]int64)
	i.view = viewState{}
	i.mu.Unlock()

	i.BeginSession()
	i.record(ctx, model.Event{
		Key:          model.KeyOrientation,
		Segmentation: model.NewSegmentation("mode", i.cfg.Orientation),
	})
	i.flush(ctx)
	i.logger.Info("device id changed", "merge", false)
	i.kick()
}

func (i *Instance) setDeviceID(id string) {
	i.mu.Lock()
	i.deviceID = id
	i.mu.Unlock()
	if err := i.kv.Set(i.ctx, storage.KeyDeviceID, id); err != nil {
		i.logger.Warn("failed to persist device id", "error", err)
	}
}
