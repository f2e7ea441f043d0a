package escrow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"escrow-gateway/internal/domain"
	"escrow-gateway/internal/observability"
	"escrow-gateway/internal/solana"
)

// Service errors.
var (
	// ErrUnknownEscrow is returned when a submission targets an address that
	// is not in the current list.
	ErrUnknownEscrow = errors.New("escrow not found in current list")

	// ErrRefreshInFlight is returned when a list refresh is already running.
	// Advisory only; the suppressed call is not queued.
	ErrRefreshInFlight = errors.New("escrow list refresh already in flight")
)

// refreshTimeout bounds the background refresh issued after a settled action.
const refreshTimeout = 30 * time.Second

// Service holds the in-memory escrow list. The list is mutated only by a full
// re-fetch from the program client: after a settled action, and whenever the
// program log watcher reports activity.
type Service struct {
	client ProgramClient
	logger *log.Logger

	mu         sync.RWMutex
	records    []domain.EscrowRecord
	refreshing bool
}

// NewService creates a Service over the given program client.
func NewService(client ProgramClient, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stdout, "[escrow] ", log.LstdFlags|log.Lshortfile)
	}
	return &Service{
		client: client,
		logger: logger,
	}
}

// Records returns a copy of the current escrow list.
func (s *Service) Records() []domain.EscrowRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.EscrowRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Find returns the listed record with the given address.
func (s *Service) Find(address string) (domain.EscrowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Address == address {
			return rec, nil
		}
	}
	return domain.EscrowRecord{}, fmt.Errorf("escrow %s: %w", address, ErrUnknownEscrow)
}

// Refresh replaces the list with a full re-fetch from the program client.
// A refresh already in flight suppresses the call.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return ErrRefreshInFlight
	}
	s.refreshing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.refreshing = false
		s.mu.Unlock()
	}()

	records, err := s.client.List(ctx)
	if err != nil {
		observability.RecordEscrowListRefresh("error", 0)
		return fmt.Errorf("list escrows: %w", err)
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	observability.RecordEscrowListRefresh("success", len(records))
	return nil
}

// NewSubmission creates a submission for the listed escrow at address. A
// settled submission triggers a background list refresh so the closed or
// accepted escrow disappears from the list.
func (s *Service) NewSubmission(viewer, address string) (*Submission, error) {
	rec, err := s.Find(address)
	if err != nil {
		return nil, err
	}

	sub := NewSubmission(s.client, viewer, rec)
	sub.settled = func() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrRefreshInFlight) {
				s.logger.Printf("refresh after settled action: %v", err)
			}
		}()
	}
	return sub, nil
}

// Watch refreshes the list whenever the program log watcher reports activity.
// Blocks until ctx is cancelled or the notification channel closes.
func (s *Service) Watch(ctx context.Context, notifications <-chan solana.LogNotification) {
	for {
		select {
		case <-ctx.Done():
			return
		case note, ok := <-notifications:
			if !ok {
				return
			}
			if note.Err != nil {
				continue // failed transaction, list unchanged
			}

			s.logger.Printf("program activity in slot %d (%s), refreshing list", note.Slot, note.Signature)
			if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrRefreshInFlight) {
				s.logger.Printf("refresh on program activity: %v", err)
			}
		}
	}
}
