package service

import (
	"context"
	"log"
	"time"
)

// Session runs the trading window. Orders are rejected until Start,
// accepted until End, and at End (or on shutdown, whichever comes
// first) every resting order is cancel-notified and the book cleared.
type Session struct {
	svc   *OrderService
	start time.Time
	end   time.Time
}

// NewSession configures the window. A zero start opens immediately; a
// zero end runs until shutdown.
func NewSession(svc *OrderService, start, end time.Time) *Session {
	return &Session{svc: svc, start: start, end: end}
}

// Run blocks until the session is over. It always leaves the book
// empty and owners notified, including when ctx is cancelled mid-session.
func (s *Session) Run(ctx context.Context) error {
	if wait := time.Until(s.start); wait > 0 {
		log.Printf("[session] sleeping until %s", s.start.Format(time.RFC3339))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.svc.OpenSession()
	log.Println("[session] open")

	if s.end.IsZero() {
		log.Println("[session] no end configured, running until shutdown")
		<-ctx.Done()
		s.finish()
		return nil
	}

	log.Printf("[session] ends at %s", s.end.Format(time.RFC3339))
	select {
	case <-time.After(time.Until(s.end)):
	case <-ctx.Done():
		log.Println("[session] shutting down early, cancelling resting orders")
	}
	s.finish()
	return nil
}

func (s *Session) finish() {
	s.svc.EndSession()
	log.Println("[session] closed, book cleared")
}
