package install

import (
	"context"
	"sync"

	"github.com/matzehuels/stackpm/pkg/registry"
)

// Prompter asks the user to confirm destructive steps.
type Prompter interface {
	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, question string, defaultYes bool) (bool, error)

	// Verification decides what to do with a checkout whose content no
	// longer matches the store entry it was copied from.
	Verification(ctx context.Context, f registry.VerificationFailure) (registry.Decision, error)
}

// StaticPrompter answers every prompt the same way and records the
// questions it was asked.
type StaticPrompter struct {
	Yes      bool
	Decision registry.Decision

	mu    sync.Mutex
	asked []string
}

// Confirm returns p.Yes.
func (p *StaticPrompter) Confirm(_ context.Context, question string, _ bool) (bool, error) {
	p.record(question)
	return p.Yes, nil
}

// Verification returns p.Decision.
func (p *StaticPrompter) Verification(_ context.Context, f registry.VerificationFailure) (registry.Decision, error) {
	p.record("verify " + f.Dir)
	return p.Decision, nil
}

func (p *StaticPrompter) record(q string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, q)
}

// Asked returns the questions asked so far.
func (p *StaticPrompter) Asked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.asked...)
}
