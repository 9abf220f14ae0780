// Package records reads and appends pharmacy and doctor rows in the
// resolved spreadsheet.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jun/brickmap/internal/adapter"
	"github.com/jun/brickmap/internal/apierr"
	"github.com/jun/brickmap/internal/model"
	"github.com/jun/brickmap/internal/resolver"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidRecord is returned when a record misses a required field.
var ErrInvalidRecord = errors.New("invalid record")

// Resolver returns the spreadsheet ID to operate on.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Store maps spreadsheet rows to records. Appends are not serialized and
// IDs are not checked for uniqueness.
type Store struct {
	resolver Resolver
	auth     resolver.Authorizer

	now  func() time.Time
	intN func(int) int
}

func NewStore(res Resolver, auth resolver.Authorizer) *Store {
	return &Store{resolver: res, auth: auth, now: time.Now}
}

// target resolves the spreadsheet and returns it with an authorized transport.
func (s *Store) target(ctx context.Context) (string, adapter.Transport, error) {
	id, err := s.resolver.Resolve(ctx)
	if err != nil {
		return "", nil, err
	}
	transport, err := s.auth.Authorized(ctx)
	if err != nil {
		return "", nil, err
	}
	return id, transport, nil
}

func readRows(ctx context.Context, transport adapter.Transport, id, op, tab string, width int) ([][]string, error) {
	rows, err := transport.ReadRange(ctx, id, tab, dataRange(width))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindIO, op, err)
	}
	return rows, nil
}

func (s *Store) appendRow(ctx context.Context, op, tab string, row []string) error {
	id, transport, err := s.target(ctx)
	if err != nil {
		return err
	}
	if err := transport.AppendRow(ctx, id, tab, appendRange(len(row)), row); err != nil {
		return apierr.Wrap(apierr.KindIO, op, err)
	}
	return nil
}

// stamp returns a new ID and creation time.
func (s *Store) stamp() (string, string) {
	now := s.now()
	return NewID(now, s.intN), FormatCreatedAt(now)
}

// Pharmacies returns every pharmacy in sheet order. Rows with no cells at
// all (cleared rows inside the data range) are skipped.
func (s *Store) Pharmacies(ctx context.Context) ([]model.Pharmacy, error) {
	id, transport, err := s.target(ctx)
	if err != nil {
		return nil, err
	}
	return readPharmacies(ctx, transport, id)
}

// Doctors returns every doctor in sheet order. Rows with no cells at all
// are skipped.
func (s *Store) Doctors(ctx context.Context) ([]model.Doctor, error) {
	id, transport, err := s.target(ctx)
	if err != nil {
		return nil, err
	}
	return readDoctors(ctx, transport, id)
}

func readPharmacies(ctx context.Context, transport adapter.Transport, id string) ([]model.Pharmacy, error) {
	rows, err := readRows(ctx, transport, id, "read pharmacies", TabPharmacies, len(PharmacyHeader))
	if err != nil {
		return nil, err
	}
	out := make([]model.Pharmacy, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		out = append(out, pharmacyFromRow(row))
	}
	return out, nil
}

func readDoctors(ctx context.Context, transport adapter.Transport, id string) ([]model.Doctor, error) {
	rows, err := readRows(ctx, transport, id, "read doctors", TabDoctors, len(DoctorHeader))
	if err != nil {
		return nil, err
	}
	out := make([]model.Doctor, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		out = append(out, doctorFromRow(row))
	}
	return out, nil
}

// AddPharmacy appends p with a generated ID and creation time and returns
// the stored record.
func (s *Store) AddPharmacy(ctx context.Context, p model.Pharmacy) (model.Pharmacy, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Brick = strings.TrimSpace(p.Brick)
	if p.Name == "" {
		return model.Pharmacy{}, fmt.Errorf("add pharmacy: name is required: %w", ErrInvalidRecord)
	}
	p.ID, p.CreatedAt = s.stamp()
	if err := s.appendRow(ctx, "add pharmacy", TabPharmacies, pharmacyToRow(p)); err != nil {
		return model.Pharmacy{}, err
	}
	return p, nil
}

// AddDoctor appends d with a generated ID and creation time and returns the
// stored record.
func (s *Store) AddDoctor(ctx context.Context, d model.Doctor) (model.Doctor, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.Brick = strings.TrimSpace(d.Brick)
	if d.Name == "" {
		return model.Doctor{}, fmt.Errorf("add doctor: name is required: %w", ErrInvalidRecord)
	}
	d.ID, d.CreatedAt = s.stamp()
	if err := s.appendRow(ctx, "add doctor", TabDoctors, doctorToRow(d)); err != nil {
		return model.Doctor{}, err
	}
	return d, nil
}

// Dataset reads both tabs concurrently. The spreadsheet is resolved once;
// either read failing fails the whole result.
func (s *Store) Dataset(ctx context.Context) (*model.Dataset, error) {
	id, transport, err := s.target(ctx)
	if err != nil {
		return nil, err
	}

	var ds model.Dataset
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := readPharmacies(gctx, transport, id)
		ds.Pharmacies = p
		return err
	})
	g.Go(func() error {
		d, err := readDoctors(gctx, transport, id)
		ds.Doctors = d
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ds, nil
}
