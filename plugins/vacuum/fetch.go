package vacuum

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/joshp123/mivac/internal/miio"
)

const (
	methodGetStatus     = "get_status"
	methodGetConsumable = "get_consumable"
)

// Fetcher pulls raw fields and projects them through a schema.
type Fetcher struct {
	schema *Schema
	caller miio.Caller
}

func NewFetcher(schema *Schema, caller miio.Caller) *Fetcher {
	return &Fetcher{schema: schema, caller: caller}
}

// Fetch loads the named properties. Both underlying calls are issued in
// parallel; if either fails nothing is returned.
func (f *Fetcher) Fetch(ctx context.Context, names []string) (Snapshot, error) {
	var statusData, consumableData any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, err := f.caller.Call(gctx, methodGetStatus, nil)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDeviceCommunication, methodGetStatus, err)
		}
		statusData = result
		return nil
	})
	g.Go(func() error {
		result, err := f.caller.Call(gctx, methodGetConsumable, nil)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDeviceCommunication, methodGetConsumable, err)
		}
		consumableData = result
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeRecords(firstRecord(statusData), firstRecord(consumableData))
	return f.project(names, merged), nil
}

func (f *Fetcher) project(names []string, merged map[string]any) Snapshot {
	out := make(Snapshot, len(names))
	for _, name := range names {
		def, ok := f.schema.Definition(name)
		if !ok {
			out[name] = merged[name]
			continue
		}
		out[def.Name] = def.Transform.Apply(merged[def.RawKey])
	}
	return out
}

// mergeRecords combines the status and consumable records. Status wins
// when both carry a key.
func mergeRecords(status, consumable map[string]any) map[string]any {
	merged := make(map[string]any, len(status)+len(consumable))
	for k, v := range consumable {
		merged[k] = v
	}
	for k, v := range status {
		merged[k] = v
	}
	return merged
}

// firstRecord unwraps the single-record array the firmware returns.
func firstRecord(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case []any:
		if len(v) > 0 {
			if item, ok := v[0].(map[string]any); ok {
				return item
			}
		}
	}
	return nil
}
