package escrow

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"escrow-gateway/internal/domain"
	"escrow-gateway/internal/solana"
)

const (
	viewerI = "init1111111111111111111111111111111111111111"
	viewerJ = "taker111111111111111111111111111111111111111"
)

func record() domain.EscrowRecord {
	return domain.EscrowRecord{
		Address:              "escrow11111111111111111111111111111111111111",
		Initializer:          viewerI,
		MintA:                "mintA",
		MintB:                "mintB",
		InitializerAmountRaw: 500000000,
		InitializerAmount:    0.5,
		TakerAmountRaw:       1000000,
		TakerAmount:          1,
	}
}

type fakeProgramClient struct {
	mu          sync.Mutex
	records     []domain.EscrowRecord
	listErr     error
	submitErr   error
	listCalls   int
	submitCalls int
}

func (f *fakeProgramClient) List(context.Context) ([]domain.EscrowRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func (f *fakeProgramClient) Submit(_ context.Context, _ domain.EscrowAction, _ domain.EscrowRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "sig111", nil
}

func (f *fakeProgramClient) Create(context.Context, string, string, uint64, uint64) (string, error) {
	return "sig222", nil
}

func (f *fakeProgramClient) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.submitCalls
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestDecide(t *testing.T) {
	rec := record()

	require.Equal(t, domain.ActionNotConnected, Decide("", rec))
	require.Equal(t, domain.ActionClose, Decide(viewerI, rec))
	require.Equal(t, domain.ActionAccept, Decide(viewerJ, rec))
}

func TestSubmission_CloseByInitializer(t *testing.T) {
	client := &fakeProgramClient{}
	sub := NewSubmission(client, viewerI, record())

	require.Equal(t, domain.ActionClose, sub.Action())
	require.Equal(t, StateIdle, sub.State())

	require.NoError(t, sub.Request())
	require.Equal(t, StatePendingConfirmation, sub.State())

	sig, err := sub.Confirm(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sig111", sig)
	require.Equal(t, StateSettled, sub.State())
	require.Equal(t, "sig111", sub.Signature())
}

func TestSubmission_AcceptByCounterparty(t *testing.T) {
	client := &fakeProgramClient{}
	sub := NewSubmission(client, viewerJ, record())

	require.Equal(t, domain.ActionAccept, sub.Action())
	require.NoError(t, sub.Request())

	_, err := sub.Confirm(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateSettled, sub.State())
}

func TestSubmission_NotConnectedViewer(t *testing.T) {
	client := &fakeProgramClient{}
	sub := NewSubmission(client, "", record())

	require.ErrorIs(t, sub.Request(), ErrNotAuthorized)
	require.Equal(t, StateIdle, sub.State())
}

func TestSubmission_NonOwnerCloseRejectedLocally(t *testing.T) {
	client := &fakeProgramClient{}

	// A close attempt by a viewer who is not the initializer must be refused
	// before the program client is touched.
	sub := &Submission{
		client: client,
		viewer: viewerJ,
		record: record(),
		action: domain.ActionClose,
		state:  StatePendingConfirmation,
	}

	_, err := sub.Confirm(context.Background())
	require.ErrorIs(t, err, ErrNotAuthorized)

	_, submits := client.counts()
	require.Zero(t, submits, "program client must never see an unauthorized action")
	require.Equal(t, StateIdle, sub.State())
}

func TestSubmission_SelfAcceptRejectedLocally(t *testing.T) {
	client := &fakeProgramClient{}
	sub := &Submission{
		client: client,
		viewer: viewerI,
		record: record(),
		action: domain.ActionAccept,
		state:  StatePendingConfirmation,
	}

	_, err := sub.Confirm(context.Background())
	require.ErrorIs(t, err, ErrNotAuthorized)

	_, submits := client.counts()
	require.Zero(t, submits)
}

func TestSubmission_FailureAllowsFreshGesture(t *testing.T) {
	client := &fakeProgramClient{submitErr: errors.New("blockhash expired")}
	sub := NewSubmission(client, viewerI, record())

	require.NoError(t, sub.Request())

	_, err := sub.Confirm(context.Background())
	require.ErrorIs(t, err, ErrTransactionFailed)
	require.Equal(t, StateFailed, sub.State())
	require.Error(t, sub.Err())

	// No automatic retry: confirming again is an invalid transition.
	_, err = sub.Confirm(context.Background())
	require.ErrorIs(t, err, ErrInvalidTransition)

	// A fresh gesture starts over.
	client.mu.Lock()
	client.submitErr = nil
	client.mu.Unlock()

	require.NoError(t, sub.Request())
	_, err = sub.Confirm(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateSettled, sub.State())
}

func TestSubmission_ConfirmRequiresRequest(t *testing.T) {
	sub := NewSubmission(&fakeProgramClient{}, viewerI, record())

	_, err := sub.Confirm(context.Background())
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_Refresh(t *testing.T) {
	client := &fakeProgramClient{records: []domain.EscrowRecord{record()}}
	svc := NewService(client, testLogger())

	require.Empty(t, svc.Records())
	require.NoError(t, svc.Refresh(context.Background()))

	records := svc.Records()
	require.Len(t, records, 1)
	require.Equal(t, record().Address, records[0].Address)
}

func TestService_RefreshError(t *testing.T) {
	client := &fakeProgramClient{
		records: []domain.EscrowRecord{record()},
	}
	svc := NewService(client, testLogger())
	require.NoError(t, svc.Refresh(context.Background()))

	// A failed refresh leaves the previous list untouched.
	client.mu.Lock()
	client.listErr = errors.New("rpc down")
	client.mu.Unlock()

	require.Error(t, svc.Refresh(context.Background()))
	require.Len(t, svc.Records(), 1)
}

func TestService_FindAndNewSubmission(t *testing.T) {
	client := &fakeProgramClient{records: []domain.EscrowRecord{record()}}
	svc := NewService(client, testLogger())
	require.NoError(t, svc.Refresh(context.Background()))

	sub, err := svc.NewSubmission(viewerJ, record().Address)
	require.NoError(t, err)
	require.Equal(t, domain.ActionAccept, sub.Action())

	_, err = svc.NewSubmission(viewerJ, "unknown")
	require.ErrorIs(t, err, ErrUnknownEscrow)
}

func TestService_SettledActionTriggersRefresh(t *testing.T) {
	client := &fakeProgramClient{records: []domain.EscrowRecord{record()}}
	svc := NewService(client, testLogger())
	require.NoError(t, svc.Refresh(context.Background()))

	lists, _ := client.counts()

	sub, err := svc.NewSubmission(viewerJ, record().Address)
	require.NoError(t, err)
	require.NoError(t, sub.Request())

	_, err = sub.Confirm(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		now, _ := client.counts()
		return now > lists
	}, time.Second, 10*time.Millisecond, "expected a list refresh after the settled action")
}

func TestService_WatchRefreshesOnProgramActivity(t *testing.T) {
	client := &fakeProgramClient{records: []domain.EscrowRecord{record()}}
	svc := NewService(client, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notes := make(chan solana.LogNotification, 2)
	done := make(chan struct{})
	go func() {
		svc.Watch(ctx, notes)
		close(done)
	}()

	// Failed transactions are ignored, successful ones trigger a refresh.
	notes <- solana.LogNotification{Signature: "bad", Slot: 1, Err: map[string]interface{}{"InstructionError": nil}}
	notes <- solana.LogNotification{Signature: "good", Slot: 2}

	require.Eventually(t, func() bool {
		lists, _ := client.counts()
		return lists == 1
	}, time.Second, 10*time.Millisecond)

	close(notes)
	<-done
}
