package scanner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventgate/internal/checkin"
	"eventgate/internal/directory"
	"eventgate/internal/gateclient"
	"eventgate/internal/ticket"
)

type fakeRemote struct {
	err   error
	calls int
}

func (f *fakeRemote) CheckIn(ctx context.Context, barcode string, method checkin.Method) (*checkin.Outcome, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &checkin.Outcome{Success: true, Person: directory.Person{Name: "Remote Person", Class: "12A"}}, nil
}

func seeded(t *testing.T) (*directory.Memory, string) {
	t.Helper()
	ctx := context.Background()
	store := directory.NewMemory()
	class, err := store.CreateClass(ctx, "11B")
	require.NoError(t, err)
	st, err := store.CreateStudent(ctx, directory.Student{Code: "S-1", Name: "Sipho Dlamini", ClassID: class.ID, Registered: true})
	require.NoError(t, err)
	_, err = store.CreateTicket(ctx, directory.StudentKind, directory.Ticket{OwnerID: st.ID, Barcode: "TMSS111111AAAA"})
	require.NoError(t, err)
	return store, "TMSS111111AAAA"
}

func TestScanUsesServer(t *testing.T) {
	remote := &fakeRemote{}
	opened := false
	s := &Station{Remote: remote, Method: checkin.MethodScan, OpenLocal: func(context.Context) (Local, error) {
		opened = true
		return nil, errors.New("unused")
	}}

	res, err := s.Scan(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, "server", res.Via)
	assert.False(t, opened)
}

func TestScanFallsBackWhenServerUnavailable(t *testing.T) {
	store, code := seeded(t)
	opens := 0
	s := &Station{
		Remote:   &fakeRemote{err: gateclient.ErrUnavailable},
		Method:   checkin.MethodScan,
		Operator: "gate-east",
		OpenLocal: func(context.Context) (Local, error) {
			opens++
			return checkin.NewService(store, checkin.Options{}), nil
		},
	}

	res, err := s.Scan(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, "local", res.Via)
	assert.Equal(t, "Sipho Dlamini", res.Outcome.Person.Name)
	assert.Equal(t, "gate-east", res.Outcome.ScannedBy)

	_, err = s.Scan(context.Background(), code)
	assert.True(t, errors.Is(err, ticket.ErrAlreadyUsed))
	assert.Equal(t, 1, opens, "fallback store is opened once")
}

func TestScanDoesNotFallBackOnBusinessErrors(t *testing.T) {
	apiErr := &gateclient.APIError{Status: 409, Tag: "already_used", Person: directory.Person{Name: "Thandi Mkhize"}}
	s := &Station{
		Remote: &fakeRemote{err: apiErr},
		OpenLocal: func(context.Context) (Local, error) {
			t.Fatal("fallback must not be used")
			return nil, nil
		},
	}
	_, err := s.Scan(context.Background(), "X")
	assert.True(t, errors.Is(err, ticket.ErrAlreadyUsed))
}

func TestScanWithoutFallback(t *testing.T) {
	s := &Station{Remote: &fakeRemote{err: gateclient.ErrUnavailable}}
	_, err := s.Scan(context.Background(), "X")
	assert.True(t, errors.Is(err, gateclient.ErrUnavailable))
}

func TestRunWritesVerdicts(t *testing.T) {
	store, code := seeded(t)
	s := &Station{
		Remote: &fakeRemote{err: gateclient.ErrUnavailable},
		Method: checkin.MethodBarcode,
		OpenLocal: func(context.Context) (Local, error) {
			return checkin.NewService(store, checkin.Options{}), nil
		},
	}

	in := strings.NewReader(code + "\n\n" + code + "\nNOPE\n")
	var out bytes.Buffer
	require.NoError(t, s.Run(context.Background(), in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ADMIT  Sipho Dlamini (11B) [local]", lines[0])
	assert.Equal(t, "USED   Sipho Dlamini (11B) already checked in", lines[1])
	assert.Equal(t, "REJECT NOPE: no such ticket", lines[2])
}

func TestVerdictForRemoteAlreadyUsed(t *testing.T) {
	err := &gateclient.APIError{Status: 409, Tag: "already_used", Person: directory.Person{Name: "Thandi Mkhize", Class: "12A"}}
	assert.Equal(t, "USED   Thandi Mkhize (12A) already checked in", Verdict("X", Result{}, err))
	assert.Equal(t, "ERROR  X: boom", Verdict("X", Result{}, errors.New("boom")))
}
