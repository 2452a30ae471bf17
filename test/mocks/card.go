// Package mocks provides the programmable test doubles shared by the
// kernel, entry point and orchestrator tests: a scripted card, stub
// verifiers and deterministic clock and randomness.
package mocks

import (
	"context"
	"errors"
	"sync"
)

// Matcher selects the commands a scripted response applies to.
type Matcher func(command []byte) bool

type cardRule struct {
	match     Matcher
	responses [][]byte
	next      int
	err       error
	failAfter bool
}

// Card is a programmable transceiver. Rules are checked in registration
// order; a rule with several responses plays them in sequence and then
// repeats the last one.
type Card struct {
	mu       sync.Mutex
	rules    []*cardRule
	Commands [][]byte
}

// NewCard creates an empty scripted card.
func NewCard() *Card {
	return &Card{}
}

// On registers responses for commands accepted by match.
func (c *Card) On(match Matcher, responses ...[]byte) *Card {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, &cardRule{match: match, responses: responses})
	return c
}

// FailOn makes matching commands fail with a transport error, simulating
// a tear-off.
func (c *Card) FailOn(match Matcher) *Card {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, &cardRule{match: match, err: errors.New("card removed from field")})
	return c
}

// OnThenFail answers matching commands from the script once each, then
// fails with a transport error. Used to tear the card mid-flow.
func (c *Card) OnThenFail(match Matcher, responses ...[]byte) *Card {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, &cardRule{match: match, responses: responses, failAfter: true})
	return c
}

// Transceive implements the transceiver capability.
func (c *Card) Transceive(_ context.Context, command []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recorded := make([]byte, len(command))
	copy(recorded, command)
	c.Commands = append(c.Commands, recorded)

	for _, rule := range c.rules {
		if !rule.match(command) {
			continue
		}
		if rule.err != nil {
			return nil, rule.err
		}
		if len(rule.responses) == 0 {
			return nil, errors.New("mock card rule has no response")
		}
		if rule.failAfter && rule.next >= len(rule.responses) {
			return nil, errors.New("card removed from field")
		}
		resp := rule.responses[rule.next]
		if rule.failAfter {
			rule.next++
		} else if rule.next < len(rule.responses)-1 {
			rule.next++
		}
		out := make([]byte, len(resp))
		copy(out, resp)
		return out, nil
	}
	// unknown command: instruction not supported
	return []byte{0x6D, 0x00}, nil
}

// Header matches on CLA, INS, P1 and P2.
func Header(cla, ins, p1, p2 byte) Matcher {
	return func(cmd []byte) bool {
		return len(cmd) >= 4 && cmd[0] == cla && cmd[1] == ins && cmd[2] == p1 && cmd[3] == p2
	}
}

// Ins matches any command with the instruction byte.
func Ins(ins byte) Matcher {
	return func(cmd []byte) bool {
		return len(cmd) >= 2 && cmd[1] == ins
	}
}

// SelectOf matches a SELECT for the exact file name or AID.
func SelectOf(name []byte) Matcher {
	return func(cmd []byte) bool {
		if len(cmd) < 5 || cmd[1] != 0xA4 {
			return false
		}
		lc := int(cmd[4])
		if len(cmd) < 5+lc || lc != len(name) {
			return false
		}
		for i := range name {
			if cmd[5+i] != name[i] {
				return false
			}
		}
		return true
	}
}
