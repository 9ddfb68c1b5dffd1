package sip

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
)

// Backend creates SIP resources. Two implementations exist: CLIBackend shells
// out to the lk tool, APIBackend talks to the platform directly.
type Backend interface {
	Name() string
	Available() error
	CreateInboundTrunk(ctx context.Context, d Descriptor) (string, error)
	CreateOutboundTrunk(ctx context.Context, d Descriptor) (string, error)
	CreateDispatchRule(ctx context.Context, d Descriptor) (string, error)
	List(ctx context.Context) (string, error)
}

type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepSkipped StepStatus = "skipped"
	StepFailed  StepStatus = "failed"
)

// StepResult records the outcome of one provisioning step.
type StepResult struct {
	Name   string
	Status StepStatus
	Detail string
}

// Provisioner runs the full SIP setup sequence against a config directory:
// inbound trunk, outbound trunk, dispatch rule, then a listing of what exists.
// Each step is best-effort. A missing descriptor skips its step, a platform
// failure is recorded and the sequence continues.
type Provisioner struct {
	backend   Backend
	configDir string
	logger    *log.Logger
}

func NewProvisioner(backend Backend, configDir string, logger *log.Logger) *Provisioner {
	if logger == nil {
		logger = log.Default()
	}
	return &Provisioner{backend: backend, configDir: configDir, logger: logger}
}

// ErrBackendUnavailable wraps the availability failure so callers can tell
// "nothing was attempted" apart from per-step failures.
var ErrBackendUnavailable = errors.New("sip backend unavailable")

// Run executes the setup sequence. If the backend is unavailable it returns
// ErrBackendUnavailable with no steps attempted. Otherwise it always returns
// one result per step and a nil error; callers inspect the results.
func (p *Provisioner) Run(ctx context.Context) ([]StepResult, error) {
	if err := p.backend.Available(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, p.backend.Name(), err)
	}

	results := make([]StepResult, 0, 4)
	results = append(results, p.createStep(ctx, InboundTrunk, p.backend.CreateInboundTrunk))
	results = append(results, p.createStep(ctx, OutboundTrunk, p.backend.CreateOutboundTrunk))
	results = append(results, p.createStep(ctx, DispatchRule, p.backend.CreateDispatchRule))
	results = append(results, p.listStep(ctx))
	return results, nil
}

func (p *Provisioner) createStep(ctx context.Context, kind DescriptorKind, create func(context.Context, Descriptor) (string, error)) StepResult {
	step := string(kind)

	desc, err := LoadDescriptor(p.configDir, kind)
	if errors.Is(err, os.ErrNotExist) {
		p.logger.Printf("sip: %s: no descriptor in %s, skipping", step, p.configDir)
		return StepResult{Name: step, Status: StepSkipped, Detail: "no descriptor found"}
	}
	if err != nil {
		p.logger.Printf("sip: %s: %v", step, err)
		return StepResult{Name: step, Status: StepFailed, Detail: err.Error()}
	}

	detail, err := create(ctx, desc)
	if err != nil {
		p.logger.Printf("sip: %s: %v", step, err)
		return StepResult{Name: step, Status: StepFailed, Detail: err.Error()}
	}
	p.logger.Printf("sip: %s: %s", step, detail)
	return StepResult{Name: step, Status: StepOK, Detail: detail}
}

func (p *Provisioner) listStep(ctx context.Context) StepResult {
	out, err := p.backend.List(ctx)
	if err != nil {
		p.logger.Printf("sip: list: %v", err)
		return StepResult{Name: "list", Status: StepFailed, Detail: err.Error()}
	}
	return StepResult{Name: "list", Status: StepOK, Detail: out}
}

// Failed reports whether any step failed outright. Skips do not count.
func Failed(results []StepResult) bool {
	for _, r := range results {
		if r.Status == StepFailed {
			return true
		}
	}
	return false
}
