// Package access decides whether an update may proceed through the chain.
package access

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/Proton-105/himera-dispatch/internal/update"
)

// Decision is the verdict of a policy.
type Decision int

const (
	Allow Decision = iota
	Deny
)

func (d Decision) String() string {
	if d == Deny {
		return "deny"
	}
	return "allow"
}

// ParseDecision accepts "allow" or "deny", case-insensitively.
func ParseDecision(raw string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "allow":
		return Allow, nil
	case "deny":
		return Deny, nil
	default:
		return Allow, fmt.Errorf("unknown access decision %q", raw)
	}
}

// Principal is the identity a policy is evaluated against.
type Principal struct {
	UserID   int64
	ChatID   int64
	Username string
}

// PrincipalOf extracts the principal of an update.
func PrincipalOf(upd update.Update) Principal {
	return Principal{
		UserID:   upd.UserID,
		ChatID:   upd.ChatID,
		Username: upd.Username,
	}
}

// Matcher selects the principals a rule applies to.
type Matcher interface {
	Match(p Principal) bool
	String() string
}

type userIDMatcher int64

func (m userIDMatcher) Match(p Principal) bool { return p.UserID == int64(m) }
func (m userIDMatcher) String() string         { return "user:" + strconv.FormatInt(int64(m), 10) }

type chatIDMatcher int64

func (m chatIDMatcher) Match(p Principal) bool { return p.ChatID == int64(m) }
func (m chatIDMatcher) String() string         { return "chat:" + strconv.FormatInt(int64(m), 10) }

type usernameMatcher string

func (m usernameMatcher) Match(p Principal) bool {
	return p.Username != "" && strings.EqualFold(normalizeUsername(p.Username), string(m))
}
func (m usernameMatcher) String() string { return "username:" + string(m) }

type anyMatcher struct{}

func (anyMatcher) Match(Principal) bool { return true }
func (anyMatcher) String() string       { return "any" }

type customMatcher struct {
	name string
	fn   func(Principal) bool
}

func (m customMatcher) Match(p Principal) bool { return m.fn != nil && m.fn(p) }
func (m customMatcher) String() string         { return "custom:" + m.name }

// UserID matches one sender.
func UserID(id int64) Matcher { return userIDMatcher(id) }

// ChatID matches one chat.
func ChatID(id int64) Matcher { return chatIDMatcher(id) }

// Username matches a sender by username, ignoring case and a leading "@".
func Username(name string) Matcher { return usernameMatcher(normalizeUsername(name)) }

// Any matches every principal.
func Any() Matcher { return anyMatcher{} }

// Custom matches with an arbitrary predicate.
func Custom(name string, fn func(Principal) bool) Matcher {
	return customMatcher{name: name, fn: fn}
}

func normalizeUsername(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}

// Rule pairs a matcher with the decision it yields.
type Rule struct {
	Matcher  Matcher
	Decision Decision
}

func (r Rule) String() string {
	return r.Decision.String() + " " + r.Matcher.String()
}

// Policy is an ordered rule list with a default. It is immutable.
type Policy struct {
	rules []Rule
	def   Decision
}

// NewPolicy builds a Policy. Rules with a nil matcher are dropped.
func NewPolicy(def Decision, rules ...Rule) *Policy {
	kept := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Matcher != nil {
			kept = append(kept, r)
		}
	}
	return &Policy{rules: kept, def: def}
}

// Evaluate returns the decision of the first matching rule, or the default.
func (p *Policy) Evaluate(principal Principal) Decision {
	d, _ := p.Explain(principal)
	return d
}

// Explain is Evaluate that also returns the index of the deciding rule, or -1 for the default.
func (p *Policy) Explain(principal Principal) (Decision, int) {
	if p == nil {
		return Allow, -1
	}

	for i, r := range p.rules {
		if r.Matcher.Match(principal) {
			return r.Decision, i
		}
	}
	return p.def, -1
}

// Rules returns a copy of the ordered rules.
func (p *Policy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// Default returns the decision used when no rule matches.
func (p *Policy) Default() Decision {
	return p.def
}

// Holder publishes the current Policy to concurrent readers and allows hot replacement.
type Holder struct {
	current atomic.Pointer[Policy]
}

// NewHolder stores p as the initial policy.
func NewHolder(p *Policy) *Holder {
	h := &Holder{}
	h.Store(p)
	return h
}

// Load returns the current policy.
func (h *Holder) Load() *Policy {
	return h.current.Load()
}

// Store replaces the current policy. Dispatches already evaluating keep their snapshot.
func (h *Holder) Store(p *Policy) {
	if p == nil {
		p = NewPolicy(Allow)
	}
	h.current.Store(p)
}
