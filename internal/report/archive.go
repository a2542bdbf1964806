package report

import (
	"context"
	"fmt"
	"strconv"

	"github.com/k8ika0s/envelope-queue/internal/objectstore"
)

// ArchiveReporter uploads the last state of every dropped envelope to object
// storage as <namespace>/<operation>/<sequence>.json. Other events are
// ignored. The queue itself still treats a drop as terminal; the archive is
// only a forensic copy.
type ArchiveReporter struct {
	Store objectstore.Store
}

func (a ArchiveReporter) Report(ctx context.Context, evt Event) error {
	if evt.Kind != KindDropped || len(evt.Envelope) == 0 || a.Store == nil {
		return nil
	}
	if err := a.Store.Put(ctx, archivePath(evt), evt.Envelope, "application/json"); err != nil {
		return fmt.Errorf("archive %s: %w", evt.Key, err)
	}
	return nil
}

func archivePath(evt Event) string {
	return evt.Namespace + "/" + evt.Operation + "/" + strconv.FormatInt(evt.Sequence, 10) + ".json"
}
