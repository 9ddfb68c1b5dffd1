package sip

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner abstracts command execution so the provisioning flow is testable
// without the real lk binary.
type Runner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, name string, args ...string) (stdout string, err error)
}

type execRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() Runner { return execRunner{} }

func (execRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// exec.CommandContext may surface "signal: killed" instead of context cancellation.
			return "", ctx.Err()
		}
		errText := strings.TrimSpace(stderr.String())
		if errText == "" {
			errText = strings.TrimSpace(stdout.String())
		}
		if errText != "" {
			return "", fmt.Errorf("%s failed: %w: %s", name, err, errText)
		}
		return "", fmt.Errorf("%s failed: %w", name, err)
	}
	return stdout.String(), nil
}

// CLIBackend provisions SIP resources by shelling out to the lk CLI.
// Arguments are forwarded as files; the CLI owns parsing, validation, and
// credential handling (via its own environment).
type CLIBackend struct {
	binary string
	runner Runner
}

func NewCLIBackend(binary string, runner Runner) *CLIBackend {
	if runner == nil {
		runner = NewExecRunner()
	}
	return &CLIBackend{binary: strings.TrimSpace(binary), runner: runner}
}

func (b *CLIBackend) Name() string { return "lk cli" }

// Available checks that the CLI binary is on the path.
func (b *CLIBackend) Available() error {
	if b.binary == "" {
		return fmt.Errorf("lk CLI path is empty")
	}
	if _, err := b.runner.LookPath(b.binary); err != nil {
		return fmt.Errorf("lk CLI %q not found on PATH: %w", b.binary, err)
	}
	return nil
}

func (b *CLIBackend) createFromFile(ctx context.Context, d Descriptor, subcommand string) (string, error) {
	path, cleanup, err := d.MaterializeJSON()
	if err != nil {
		return "", err
	}
	defer cleanup()

	out, err := b.runner.Run(ctx, b.binary, "sip", subcommand, "create", path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (b *CLIBackend) CreateInboundTrunk(ctx context.Context, d Descriptor) (string, error) {
	return b.createFromFile(ctx, d, "inbound")
}

func (b *CLIBackend) CreateOutboundTrunk(ctx context.Context, d Descriptor) (string, error) {
	return b.createFromFile(ctx, d, "outbound")
}

func (b *CLIBackend) CreateDispatchRule(ctx context.Context, d Descriptor) (string, error) {
	return b.createFromFile(ctx, d, "dispatch")
}

// List prints the provider's view of trunks and dispatch rules.
func (b *CLIBackend) List(ctx context.Context) (string, error) {
	var out strings.Builder
	for _, section := range []struct {
		title string
		args  []string
	}{
		{"Inbound SIP Trunks", []string{"sip", "inbound", "list"}},
		{"Outbound SIP Trunks", []string{"sip", "outbound", "list"}},
		{"SIP Dispatch Rules", []string{"sip", "dispatch", "list"}},
	} {
		text, err := b.runner.Run(ctx, b.binary, section.args...)
		if err != nil {
			return out.String(), err
		}
		out.WriteString("=== " + section.title + " ===\n")
		out.WriteString(strings.TrimSpace(text))
		out.WriteString("\n")
	}
	return out.String(), nil
}
