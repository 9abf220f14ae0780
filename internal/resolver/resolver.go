// Package resolver finds the spreadsheet backing a profile's records,
// creating it on first use.
package resolver

import (
	"context"
	"fmt"

	"github.com/jun/brickmap/internal/adapter"
	"github.com/jun/brickmap/internal/apierr"
	"github.com/jun/brickmap/internal/kvstore"
	"github.com/rs/zerolog/log"
)

// DefaultName is the display name of the spreadsheet.
const DefaultName = "BrickMap Data"

const orderNewestFirst = "createdTime desc"

// Partition is a tab created with a new spreadsheet.
type Partition struct {
	Name   string
	Header []string
}

// Authorizer yields a transport with a valid token attached.
type Authorizer interface {
	Authorized(ctx context.Context) (adapter.Transport, error)
}

// Resolver resolves the spreadsheet ID: cached handle, then search, then
// create.
type Resolver struct {
	auth       Authorizer
	store      kvstore.Store
	name       string
	partitions []Partition
}

// New creates a Resolver. An empty name uses DefaultName.
func New(auth Authorizer, store kvstore.Store, name string, partitions []Partition) *Resolver {
	if name == "" {
		name = DefaultName
	}
	return &Resolver{auth: auth, store: store, name: name, partitions: partitions}
}

// Resolve returns the ID of a reachable spreadsheet. The cached handle is
// verified on every call.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	transport, err := r.auth.Authorized(ctx)
	if err != nil {
		return "", err
	}

	if id := r.verifyCached(ctx, transport); id != "" {
		return id, nil
	}

	id, err := r.search(ctx, transport)
	if err != nil {
		return "", apierr.Wrap(apierr.KindResource, "search spreadsheet", err)
	}
	if id == "" {
		if id, err = r.create(ctx, transport); err != nil {
			return "", apierr.Wrap(apierr.KindResource, "create spreadsheet", err)
		}
	} else if err := r.ensureHeaders(ctx, transport, id); err != nil {
		return "", apierr.Wrap(apierr.KindResource, "repair headers", err)
	}

	if err := r.store.Set(ctx, kvstore.KeyResourceID, id); err != nil {
		log.Warn().Err(err).Str("spreadsheet_id", id).Msg("unable to persist spreadsheet ID")
	}
	return id, nil
}

// verifyCached returns the cached ID if it is still reachable. Failures are
// logged and never surfaced.
func (r *Resolver) verifyCached(ctx context.Context, transport adapter.Transport) string {
	id, err := kvstore.Lookup(ctx, r.store, kvstore.KeyResourceID)
	if err != nil {
		log.Warn().Err(err).Msg("unable to read cached spreadsheet ID")
		return ""
	}
	if id == "" {
		return ""
	}

	if _, err := transport.GetResourceMetadata(ctx, id); err != nil {
		log.Warn().
			Str("kind", apierr.KindTransientDiscovery.String()).
			Str("spreadsheet_id", id).
			Str("error", apierr.Message(err)).
			Msg("cached spreadsheet not reachable, searching")
		return ""
	}
	return id
}

func (r *Resolver) search(ctx context.Context, transport adapter.Transport) (string, error) {
	found, err := transport.ListResources(ctx, adapter.ResourceQuery{
		Name:           r.name,
		MIMEType:       adapter.SpreadsheetMIMEType,
		ExcludeTrashed: true,
		OrderBy:        orderNewestFirst,
	})
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", nil
	}
	if len(found) > 1 {
		log.Debug().Int("matches", len(found)).Str("spreadsheet_id", found[0].ID).Msg("several spreadsheets match, using the newest")
	}
	return found[0].ID, nil
}

func headerWrite(p Partition) adapter.RangeWrite {
	return adapter.RangeWrite{
		Range:  adapter.A1(p.Name, headerRange(p)),
		Values: [][]string{p.Header},
	}
}

func headerRange(p Partition) string {
	return fmt.Sprintf("A1:%s1", adapter.ColumnName(len(p.Header)))
}

func (r *Resolver) create(ctx context.Context, transport adapter.Transport) (string, error) {
	names := make([]string, 0, len(r.partitions))
	writes := make([]adapter.RangeWrite, 0, len(r.partitions))
	for _, p := range r.partitions {
		names = append(names, p.Name)
		writes = append(writes, headerWrite(p))
	}

	res, err := transport.CreateResource(ctx, r.name, names)
	if err != nil {
		return "", err
	}
	if err := transport.BatchWriteRanges(ctx, res.ID, writes); err != nil {
		log.Warn().Str("spreadsheet_id", res.ID).Str("error", apierr.Message(err)).Msg("header write failed, retrying")
		if err := transport.BatchWriteRanges(ctx, res.ID, writes); err != nil {
			// The spreadsheet stays behind; ensureHeaders repairs it when a
			// later search adopts it.
			return "", fmt.Errorf("unable to write headers: %w", err)
		}
	}
	log.Info().Str("spreadsheet_id", res.ID).Msg("created spreadsheet")
	return res.ID, nil
}

// ensureHeaders writes the header row of every partition where row 1 is
// empty. Rows are read from row 2, so an append into a headerless tab would
// never be read back.
func (r *Resolver) ensureHeaders(ctx context.Context, transport adapter.Transport, id string) error {
	var missing []adapter.RangeWrite
	for _, p := range r.partitions {
		rows, err := transport.ReadRange(ctx, id, p.Name, headerRange(p))
		if err != nil {
			return err
		}
		if len(rows) == 0 || len(rows[0]) == 0 {
			missing = append(missing, headerWrite(p))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	log.Warn().Str("spreadsheet_id", id).Int("partitions", len(missing)).Msg("restoring missing header rows")
	return transport.BatchWriteRanges(ctx, id, missing)
}
