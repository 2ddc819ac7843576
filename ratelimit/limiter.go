package ratelimit

import (
	"context"
	"time"

	"github.com/apex/log"
)

// Kind names a limiter policy
type Kind string

const (
	KindUpload  Kind = "upload"
	KindAPI     Kind = "api"
	KindLogin   Kind = "login"
	KindRefresh Kind = "refresh"
)

// Policy is a number of requests allowed per window
type Policy struct {
	Limit  int
	Window time.Duration
}

// DefaultPolicies are the limits applied per client
func DefaultPolicies() map[Kind]Policy {
	return map[Kind]Policy{
		KindUpload:  {Limit: 5, Window: 15 * time.Minute},
		KindAPI:     {Limit: 100, Window: time.Minute},
		KindLogin:   {Limit: 5, Window: 15 * time.Minute},
		KindRefresh: {Limit: 10, Window: time.Minute},
	}
}

// Result is the outcome of one check
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetTime"`
}

// Limiter applies per-kind policies on top of a Store
type Limiter struct {
	store    Store
	policies map[Kind]Policy
}

// NewLimiter creates a limiter; nil policies means DefaultPolicies
func NewLimiter(store Store, policies map[Kind]Policy) *Limiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Limiter{store: store, policies: policies}
}

// Key builds the counter key for a client and limiter kind
func Key(kind Kind, clientID string) string {
	return string(kind) + ":" + clientID
}

// Check counts one request for clientID. Unknown kinds and store errors let
// the request through.
func (l *Limiter) Check(ctx context.Context, clientID string, kind Kind) Result {
	policy, ok := l.policies[kind]
	if !ok {
		return Result{Allowed: true}
	}

	count, resetAt, err := l.store.Hit(ctx, Key(kind, clientID), policy.Window)
	if err != nil {
		log.Errorf("Rate limit store failed for %s, allowing request: %v", kind, err)
		return Result{Allowed: true, Limit: policy.Limit, Remaining: policy.Limit, ResetAt: time.Now().Add(policy.Window)}
	}

	remaining := policy.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= policy.Limit,
		Limit:     policy.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
