// Package scanner runs a door station: it reads scanned codes and redeems
// them through the API, falling back to the directory store when the API
// cannot be reached.
package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"eventgate/internal/checkin"
	"eventgate/internal/directory"
	"eventgate/internal/gateclient"
	"eventgate/internal/ticket"
)

// Remote redeems through the HTTP API.
type Remote interface {
	CheckIn(ctx context.Context, barcode string, method checkin.Method) (*checkin.Outcome, error)
}

// Local redeems against the store directly.
type Local interface {
	Redeem(ctx context.Context, barcode string, method checkin.Method, operator string) (checkin.Outcome, error)
}

// Result is one processed scan.
type Result struct {
	Outcome checkin.Outcome
	Via     string // "server" or "local"
}

// Station processes scans for one door.
type Station struct {
	Remote   Remote
	Method   checkin.Method
	Operator string

	// OpenLocal builds the fallback on first need. Nil disables fallback.
	OpenLocal func(ctx context.Context) (Local, error)

	mu    sync.Mutex
	local Local
}

// Scan redeems one code.
func (s *Station) Scan(ctx context.Context, barcode string) (Result, error) {
	out, err := s.Remote.CheckIn(ctx, barcode, s.Method)
	if err == nil {
		return Result{Outcome: *out, Via: "server"}, nil
	}
	if !errors.Is(err, gateclient.ErrUnavailable) || s.OpenLocal == nil {
		return Result{}, err
	}
	log.Printf("scanner: server unavailable (%v), redeeming locally", err)

	local, lerr := s.fallback(ctx)
	if lerr != nil {
		return Result{}, fmt.Errorf("%w; local fallback: %w", err, lerr)
	}
	res, err := local.Redeem(ctx, barcode, s.Method, s.Operator)
	if err != nil {
		return Result{}, err
	}
	return Result{Outcome: res, Via: "local"}, nil
}

func (s *Station) fallback(ctx context.Context) (Local, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local != nil {
		return s.local, nil
	}
	l, err := s.OpenLocal(ctx)
	if err != nil {
		return nil, err
	}
	s.local = l
	return l, nil
}

// Run reads one code per line from in until EOF or ctx is done and writes a
// verdict line per code to out. USB scanners type the code and press Enter.
func (s *Station) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := bufio.NewScanner(in)
	for lines.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		code := strings.TrimSpace(lines.Text())
		if code == "" {
			continue
		}
		res, err := s.Scan(ctx, code)
		fmt.Fprintln(out, Verdict(code, res, err))
	}
	return lines.Err()
}

// Verdict is the line shown to the door operator.
func Verdict(code string, res Result, err error) string {
	if err == nil {
		return fmt.Sprintf("ADMIT  %s%s [%s]", res.Outcome.Person.Name, role(res.Outcome.Person), res.Via)
	}

	var used *ticket.AlreadyUsedError
	var apiErr *gateclient.APIError
	switch {
	case errors.As(err, &used):
		return fmt.Sprintf("USED   %s%s already checked in", used.Person.Name, role(used.Person))
	case errors.As(err, &apiErr) && errors.Is(err, ticket.ErrAlreadyUsed):
		return fmt.Sprintf("USED   %s%s already checked in", apiErr.Person.Name, role(apiErr.Person))
	case errors.Is(err, ticket.ErrTicketNotFound):
		return fmt.Sprintf("REJECT %s: no such ticket", code)
	case errors.Is(err, ticket.ErrValidation):
		return fmt.Sprintf("REJECT %s: %v", code, err)
	}
	return fmt.Sprintf("ERROR  %s: %v", code, err)
}

func role(p directory.Person) string {
	if p.Class == "" {
		return ""
	}
	return " (" + p.Class + ")"
}
