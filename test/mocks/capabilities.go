package mocks

import (
	"context"
	"time"

	"github.com/mgthompo1/tapkernel/internal/capability"
	"github.com/mgthompo1/tapkernel/internal/durability/reversal"
)

// ODAVerifier answers every method with a fixed result.
type ODAVerifier struct {
	Result capability.ODAResult
	Err    error
	Calls  []string
}

// Succeeding returns a verifier approving every method.
func Succeeding() *ODAVerifier {
	return &ODAVerifier{Result: capability.ODAResult{Success: true}}
}

// Failing returns a verifier rejecting every method.
func Failing(reason string) *ODAVerifier {
	return &ODAVerifier{Result: capability.ODAResult{Success: false, Reason: reason}}
}

func (v *ODAVerifier) answer(method string) (capability.ODAResult, error) {
	v.Calls = append(v.Calls, method)
	result := v.Result
	if result.Method == "" {
		result.Method = method
	}
	return result, v.Err
}

func (v *ODAVerifier) PerformSDA(_ context.Context, _ capability.ODARequest) (capability.ODAResult, error) {
	return v.answer("SDA")
}

func (v *ODAVerifier) PerformDDA(_ context.Context, _ capability.ODARequest) (capability.ODAResult, error) {
	return v.answer("DDA")
}

func (v *ODAVerifier) PerformFDDA(_ context.Context, _ capability.ODARequest) (capability.ODAResult, error) {
	return v.answer("fDDA")
}

func (v *ODAVerifier) PerformCDA(_ context.Context, _ capability.ODARequest) (capability.ODAResult, error) {
	return v.answer("CDA")
}

// ScriptAuth returns a fixed issuer authentication status.
type ScriptAuth struct {
	Status capability.ScriptAuthStatus
}

func (s *ScriptAuth) Validate(_ context.Context, _, _, _ []byte) capability.ScriptAuthStatus {
	return s.Status
}

// CAKeys is a key store with one key for every lookup.
type CAKeys struct {
	Key *capability.CAPublicKey
}

func (c *CAKeys) Lookup(rid []byte, index byte) (*capability.CAPublicKey, bool) {
	if c.Key == nil {
		return &capability.CAPublicKey{RID: rid, Index: index, Modulus: []byte{0x01}, Exponent: []byte{0x03}}, true
	}
	return c.Key, true
}

// Clock is a settable test clock.
type Clock struct {
	Current time.Time
}

func (c *Clock) Now() time.Time {
	if c.Current.IsZero() {
		return time.Date(2025, 11, 19, 12, 0, 0, 0, time.UTC)
	}
	return c.Current
}

func (c *Clock) NowMillis() int64 { return c.Now().UnixMilli() }

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) { c.Current = c.Now().Add(d) }

// RNG fills buffers with a repeating byte so assembled DOL data is
// deterministic.
type RNG struct {
	Fill byte
}

func (r *RNG) FillRandom(buf []byte) error {
	fill := r.Fill
	if fill == 0 {
		fill = 0x1D
	}
	for i := range buf {
		buf[i] = fill
	}
	return nil
}

// ReversalSender records every delivery and answers from a script.
type ReversalSender struct {
	Results []reversal.SendResult
	next    int
	Sent    []reversal.Record
}

func (s *ReversalSender) Send(_ context.Context, rec reversal.Record) reversal.SendResult {
	s.Sent = append(s.Sent, rec)
	if len(s.Results) == 0 {
		return reversal.SendResult{Status: reversal.SendSuccess}
	}
	result := s.Results[s.next]
	if s.next < len(s.Results)-1 {
		s.next++
	}
	return result
}

// Escalations records escalation signals.
type Escalations struct {
	Records []reversal.Record
}

func (e *Escalations) Escalate(_ context.Context, rec reversal.Record) error {
	e.Records = append(e.Records, rec)
	return nil
}
