package usecase

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// SettlementWorker retries queued ledger debits until they land. The
// session id is the idempotency key on every attempt, so a debit that
// actually applied but whose response was lost never double-charges.
type SettlementWorker struct {
	repo     Repository
	ledger   Ledger
	interval time.Duration
	timeout  time.Duration
	log      *logrus.Entry
	stop     chan struct{}
	done     chan struct{}
}

func NewSettlementWorker(repo Repository, ledger Ledger, interval, timeout time.Duration, log *logrus.Entry) *SettlementWorker {
	return &SettlementWorker{
		repo:     repo,
		ledger:   ledger,
		interval: interval,
		timeout:  timeout,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *SettlementWorker) Run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *SettlementWorker) Stop() {
	close(s.stop)
	<-s.done
}

// Sweep retries every pending settlement once.
func (s *SettlementWorker) Sweep() {
	pending, err := s.repo.PendingSettlements()
	if err != nil {
		s.log.WithError(err).Error("failed to load pending settlements")
		return
	}
	for _, p := range pending {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		_, err := s.ledger.Debit(ctx, p.CustomerID, p.Amount, p.SessionID)
		cancel()
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"session_id": p.SessionID,
				"attempts":   p.Attempts + 1,
			}).WithError(err).Warn("settlement retry failed")
			p.Attempts++
			if qerr := s.repo.EnqueueSettlement(p); qerr != nil {
				s.log.WithField("session_id", p.SessionID).WithError(qerr).Error("failed to update settlement attempt count")
			}
			continue
		}
		if err := s.repo.MarkSettled(p.SessionID); err != nil {
			s.log.WithField("session_id", p.SessionID).WithError(err).Error("failed to mark summary settled")
		}
		if err := s.repo.DeleteSettlement(p.SessionID); err != nil {
			s.log.WithField("session_id", p.SessionID).WithError(err).Error("failed to delete settled entry")
		}
		s.log.WithField("session_id", p.SessionID).Info("settlement applied")
	}
}
