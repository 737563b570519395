// Package hook runs a user command for every subtitle produced.
package hook

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"

	"livesub/internal/config"
)

// Job is one subtitle handed to the hook command.
type Job struct {
	Seq        uint64
	Original   string
	Translated string
	Timestamp  time.Time
}

// Payload is the text passed as the final argument: the translation when
// present, the original otherwise.
func (j Job) Payload() string {
	if j.Translated != "" {
		return j.Translated
	}
	return j.Original
}

// Runner executes the hook command with cooldown and prefix handling.
type Runner struct {
	cfg      *config.Config
	logger   *logrus.Logger
	args     []string
	hostname string

	mu      sync.Mutex
	lastRun time.Time
}

// NewRunner validates the hook settings in cfg.
func NewRunner(cfg *config.Config, logger *logrus.Logger) (*Runner, error) {
	if strings.TrimSpace(cfg.Hook.Command) == "" {
		return nil, fmt.Errorf("no hook.command configured")
	}
	args, err := ParseArgs(cfg.Hook.Args)
	if err != nil {
		return nil, fmt.Errorf("hook.args: %w", err)
	}
	host, _ := os.Hostname()
	return &Runner{
		cfg:      cfg,
		logger:   logger,
		args:     args,
		hostname: host,
	}, nil
}

// ShouldRun returns whether cooldown allows a new hook.
func (r *Runner) ShouldRun() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.Hook.CooldownSec <= 0 {
		return true
	}
	return time.Since(r.lastRun).Seconds() >= r.cfg.Hook.CooldownSec
}

// Run executes the configured command for job.
func (r *Runner) Run(ctx context.Context, job Job) error {
	r.mu.Lock()
	r.lastRun = time.Now()
	r.mu.Unlock()

	original, translated := job.Original, job.Translated
	if r.cfg.Hook.RedactPII {
		original, translated = redactPII(original), redactPII(translated)
	}
	prefix := strings.ReplaceAll(r.cfg.Hook.Prefix, "${hostname}", r.hostname)
	payload := Job{Original: original, Translated: translated}.Payload()
	args := append(append([]string{}, r.args...), strings.TrimSpace(prefix+payload))

	runCtx := ctx
	if r.cfg.Hook.TimeoutSec > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(float64(time.Second)*r.cfg.Hook.TimeoutSec))
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, r.cfg.Hook.Command, args...)
	cmd.WaitDelay = time.Second // children may hold the output pipe after a kill
	cmd.Env = os.Environ()
	for k, v := range r.cfg.Hook.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Env,
		"LIVESUB_SEQ="+strconv.FormatUint(job.Seq, 10),
		"LIVESUB_ORIGINAL="+original,
		"LIVESUB_TRANSLATED="+translated,
		"LIVESUB_TIMESTAMP="+job.Timestamp.Format(time.RFC3339),
		"LIVESUB_PREFIX="+prefix,
	)

	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		r.logger.Infof("hook output: %s", strings.TrimSpace(string(out)))
	}
	if err != nil {
		return fmt.Errorf("hook failed: %w", err)
	}
	return nil
}

// ParseArgs splits hook.args shell-style.
func ParseArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return shlex.Split(raw)
}

var (
	emailRE = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.[A-Za-z]{2,}`)
	phoneRE = regexp.MustCompile(`\+?\d[\d\s\-\(\)]{6,}\d`)
)

func redactPII(s string) string {
	s = emailRE.ReplaceAllString(s, "[redacted-email]")
	s = phoneRE.ReplaceAllString(s, "[redacted-phone]")
	return s
}
