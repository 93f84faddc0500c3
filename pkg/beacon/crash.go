package beacon

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/penshort/beacon/internal/model"
)

// AddLog appends a breadcrumb attached to later error reports.
func (i *Instance) AddLog(line string) {
	i.crumbs.Add(i.limits.Value(line))
}

// RecordError queues an error report with the current breadcrumbs.
func (i *Instance) RecordError(err error, nonfatal bool, segmentation map[string]any) {
	if err == nil || i.isClosed() || !i.consent.Has(model.FeatureCrashes) {
		return
	}

	report := map[string]any{
		"_error":    fmt.Sprintf("%+v", err),
		"_name":     i.limits.Value(err.Error()),
		"_nonfatal": nonfatal,
		"_os":       runtime.GOOS,
		"_run":      int64(i.clock.Now().Sub(i.startedAt).Seconds()),
	}
	if lines := i.crumbs.Lines(); len(lines) > 0 {
		report["_logs"] = strings.Join(lines, "\n")
	}
	if len(segmentation) > 0 {
		custom, _ := i.limits.Custom(segmentation)
		report["_custom"] = custom
	}

	data, mErr := json.Marshal(report)
	if mErr != nil {
		i.logger.Warn("failed to encode error report", "error", mErr)
		return
	}
	i.enqueue(i.ctx, i.newRequest(model.KindCrash, map[string]string{
		model.ParamCrash: string(data),
	}))
}
