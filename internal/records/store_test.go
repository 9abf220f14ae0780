package records

import (
	"context"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/jun/brickmap/internal/adapter"
	"github.com/jun/brickmap/internal/adapter/memory"
	"github.com/jun/brickmap/internal/apierr"
	"github.com/jun/brickmap/internal/kvstore"
	"github.com/jun/brickmap/internal/model"
	"github.com/jun/brickmap/internal/resolver"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

// failingTab fails reads of one tab.
type failingTab struct {
	adapter.Transport
	tab string
}

func (f failingTab) ReadRange(ctx context.Context, id, partition, rangeSpec string) ([][]string, error) {
	if partition == f.tab {
		return nil, &googleapi.Error{Code: 500, Message: "Internal error encountered."}
	}
	return f.Transport.ReadRange(ctx, id, partition, rangeSpec)
}

type fakeAuthorizer struct {
	transport adapter.Transport
}

func (f *fakeAuthorizer) Authorized(context.Context) (adapter.Transport, error) {
	f.transport.SetToken("tok")
	return f.transport, nil
}

type fixedResolver struct {
	id  string
	err error
}

func (r fixedResolver) Resolve(context.Context) (string, error) { return r.id, r.err }

var testNow = time.Date(2024, 3, 5, 9, 30, 15, 123_000_000, time.UTC)

func newTestStore(t *testing.T) (*Store, *memory.Transport, *fakeAuthorizer) {
	t.Helper()
	tr := memory.NewTransport()
	auth := &fakeAuthorizer{transport: tr}
	res := resolver.New(auth, kvstore.NewMemoryStore(), "", Partitions())
	s := NewStore(res, auth)
	s.now = func() time.Time { return testNow }
	return s, tr, auth
}

func ptr(v float64) *float64 { return &v }

func TestStore_HeaderOnlyTabIsEmpty(t *testing.T) {
	s, tr, _ := newTestStore(t)

	got, err := s.Pharmacies(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
	require.Equal(t, 1, tr.Calls("CreateResource"))

	docs, err := s.Doctors(context.Background())
	require.NoError(t, err)
	require.NotNil(t, docs)
	require.Empty(t, docs)
}

func TestStore_AddPharmacyRoundTrip(t *testing.T) {
	s, tr, _ := newTestStore(t)
	ctx := context.Background()

	added, err := s.AddPharmacy(ctx, model.Pharmacy{
		Name:       "Pharmacie Centrale",
		City:       "Lyon",
		PostalCode: "01000",
		Brick:      " 69-03 ",
		Latitude:   ptr(45.764),
		Longitude:  ptr(4.8357),
	})
	require.NoError(t, err)
	require.Equal(t, "69-03", added.Brick)
	require.Equal(t, "2024-03-05T09:30:15.123Z", added.CreatedAt)

	second, err := s.AddPharmacy(ctx, model.Pharmacy{Name: "Second"})
	require.NoError(t, err)

	got, err := s.Pharmacies(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.Pharmacy{added, second}, got)

	found, err := tr.ListResources(ctx, adapter.ResourceQuery{Name: resolver.DefaultName})
	require.NoError(t, err)
	require.Len(t, found, 1)
	rows := tr.Rows(found[0].ID, TabPharmacies)
	require.Len(t, rows, 3)
	require.Equal(t, PharmacyHeader, rows[0])
	require.Equal(t, []string{added.ID, "Pharmacie Centrale", "", "Lyon", "01000", "69-03", "", "45.764", "4.8357", "", "2024-03-05T09:30:15.123Z"}, rows[1])
}

func TestStore_RoundTripAfterFailedCreate(t *testing.T) {
	s, tr, _ := newTestStore(t)
	ctx := context.Background()
	tr.FailWith("BatchWriteRanges", &googleapi.Error{Code: 503, Message: "Backend Error"})

	_, err := s.Pharmacies(ctx)
	require.ErrorIs(t, err, apierr.ErrResource)

	tr.FailWith("BatchWriteRanges", nil)
	added, err := s.AddPharmacy(ctx, model.Pharmacy{Name: "Pharmacie de la Gare"})
	require.NoError(t, err)
	require.Equal(t, 1, tr.Calls("CreateResource"))

	got, err := s.Pharmacies(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.Pharmacy{added}, got)
}

func TestStore_AddDoctorRoundTrip(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	added, err := s.AddDoctor(ctx, model.Doctor{Name: "Dr. Martin", Specialty: "Cardiology", Latitude: ptr(-12.5)})
	require.NoError(t, err)

	got, err := s.Doctors(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.Doctor{added}, got)
	require.Equal(t, -12.5, *got[0].Latitude)
	require.Nil(t, got[0].Longitude)
}

func TestStore_AddIgnoresCallerIdentity(t *testing.T) {
	s, _, _ := newTestStore(t)

	added, err := s.AddDoctor(context.Background(), model.Doctor{ID: "mine", CreatedAt: "yesterday", Name: "X"})
	require.NoError(t, err)
	require.NotEqual(t, "mine", added.ID)
	require.Equal(t, "2024-03-05T09:30:15.123Z", added.CreatedAt)
}

func TestStore_NameRequired(t *testing.T) {
	s, tr, _ := newTestStore(t)

	_, err := s.AddPharmacy(context.Background(), model.Pharmacy{Name: "   "})
	require.ErrorIs(t, err, ErrInvalidRecord)
	_, err = s.AddDoctor(context.Background(), model.Doctor{})
	require.ErrorIs(t, err, ErrInvalidRecord)
	require.Equal(t, 0, tr.Calls("AppendRow"))
}

func TestStore_AppendFailure(t *testing.T) {
	s, tr, _ := newTestStore(t)
	tr.FailWith("AppendRow", &googleapi.Error{Code: 403, Message: "The caller does not have permission"})

	_, err := s.AddPharmacy(context.Background(), model.Pharmacy{Name: "A"})
	require.ErrorIs(t, err, apierr.ErrIO)
	require.Equal(t, "add pharmacy: The caller does not have permission", err.Error())
}

func TestStore_ResolveFailurePropagates(t *testing.T) {
	tr := memory.NewTransport()
	s := NewStore(fixedResolver{err: apierr.New(apierr.KindResource, "create spreadsheet", "quota")}, &fakeAuthorizer{transport: tr})

	_, err := s.Pharmacies(context.Background())
	require.ErrorIs(t, err, apierr.ErrResource)
	_, err = s.Dataset(context.Background())
	require.ErrorIs(t, err, apierr.ErrResource)
	require.Equal(t, 0, tr.Calls("ReadRange"))
}

func TestStore_RowMapping(t *testing.T) {
	s, tr, _ := newTestStore(t)
	ctx := context.Background()
	tr.SetToken("tok")
	res, err := tr.CreateResource(ctx, "Sheet", []string{TabPharmacies, TabDoctors})
	require.NoError(t, err)
	s.resolver = fixedResolver{id: res.ID}

	require.NoError(t, tr.AppendRow(ctx, res.ID, TabPharmacies, "A:K", PharmacyHeader))
	require.NoError(t, tr.AppendRow(ctx, res.ID, TabPharmacies, "A:K", []string{"id-1", "Short row"}))
	require.NoError(t, tr.AppendRow(ctx, res.ID, TabPharmacies, "A:K", []string{"id-2", "Bad coords", "", "", "", "", "", "north", " 2.5 ", "", "2024-01-01T00:00:00.000Z"}))
	require.NoError(t, tr.AppendRow(ctx, res.ID, TabPharmacies, "A:K", []string{"id-3", "NaN", "", "", "", "", "", "NaN", "Inf"}))

	got, err := s.Pharmacies(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)

	require.Equal(t, model.Pharmacy{ID: "id-1", Name: "Short row"}, got[0])
	require.Nil(t, got[1].Latitude)
	require.Equal(t, 2.5, *got[1].Longitude)
	require.Equal(t, "2024-01-01T00:00:00.000Z", got[1].CreatedAt)
	require.Nil(t, got[2].Latitude)
	require.Nil(t, got[2].Longitude)
}

func TestStore_SkipsEmptyRows(t *testing.T) {
	s, tr, _ := newTestStore(t)
	ctx := context.Background()
	tr.SetToken("tok")
	res, err := tr.CreateResource(ctx, "Sheet", []string{TabPharmacies, TabDoctors})
	require.NoError(t, err)
	s.resolver = fixedResolver{id: res.ID}

	require.NoError(t, tr.AppendRow(ctx, res.ID, TabDoctors, "A:J", DoctorHeader))
	require.NoError(t, tr.AppendRow(ctx, res.ID, TabDoctors, "A:J", []string{"d-1", "Dr Martin"}))
	require.NoError(t, tr.AppendRow(ctx, res.ID, TabDoctors, "A:J", []string{}))
	require.NoError(t, tr.AppendRow(ctx, res.ID, TabDoctors, "A:J", []string{"d-2", "Dr Bernard"}))

	got, err := s.Doctors(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "d-1", got[0].ID)
	require.Equal(t, "d-2", got[1].ID)
}

func TestStore_DatasetFailsIfEitherReadFails(t *testing.T) {
	for _, tab := range []string{TabPharmacies, TabDoctors} {
		t.Run(tab, func(t *testing.T) {
			s, tr, auth := newTestStore(t)
			ctx := context.Background()
			_, err := s.AddPharmacy(ctx, model.Pharmacy{Name: "A"})
			require.NoError(t, err)

			auth.transport = failingTab{Transport: tr, tab: tab}
			ds, err := s.Dataset(ctx)
			require.Nil(t, ds)
			require.ErrorIs(t, err, apierr.ErrIO)
			require.Contains(t, err.Error(), "Internal error encountered.")
		})
	}
}

func TestStore_Dataset(t *testing.T) {
	s, tr, _ := newTestStore(t)
	ctx := context.Background()

	p, err := s.AddPharmacy(ctx, model.Pharmacy{Name: "P"})
	require.NoError(t, err)
	d, err := s.AddDoctor(ctx, model.Doctor{Name: "D"})
	require.NoError(t, err)

	ds, err := s.Dataset(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.Pharmacy{p}, ds.Pharmacies)
	require.Equal(t, []model.Doctor{d}, ds.Doctors)
	require.Equal(t, 1, tr.Calls("CreateResource"))
}

var idPattern = regexp.MustCompile(`^[0-9a-z]+-[0-9a-z]{9}$`)

func TestNewID(t *testing.T) {
	id := NewID(testNow, nil)
	require.Regexp(t, idPattern, id)
	require.Equal(t, strconv.FormatInt(testNow.UnixMilli(), 36)+"-", id[:len(id)-9])

	fixed := NewID(testNow, func(n int) int { return n - 1 })
	require.Equal(t, strconv.FormatInt(testNow.UnixMilli(), 36)+"-zzzzzzzzz", fixed)

	require.NotEqual(t, NewID(testNow, nil), NewID(testNow, nil))
}

func TestFormatCreatedAt(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	require.Equal(t, "2024-03-05T08:30:15.000Z", FormatCreatedAt(time.Date(2024, 3, 5, 9, 30, 15, 0, loc)))
}

func TestDataRange(t *testing.T) {
	require.Equal(t, "A2:K10001", dataRange(len(PharmacyHeader)))
	require.Equal(t, "A2:J10001", dataRange(len(DoctorHeader)))
	require.Equal(t, "A:K", appendRange(len(PharmacyHeader)))
}

func TestNumberRejectsGarbage(t *testing.T) {
	require.Nil(t, number([]string{"abc"}, 0))
	require.Nil(t, number(nil, 3))
	require.Equal(t, 1.25, *number([]string{"1.25"}, 0))
}
