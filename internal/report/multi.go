package report

import (
	"context"
	"errors"
)

// Multi fans an event out to every reporter and joins their errors.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, evt Event) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
