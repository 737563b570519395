// Package translate converts recognized text between languages.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"livesub/internal/config"
)

// ErrEmptyTranslation is returned when a backend answered with no text.
var ErrEmptyTranslation = errors.New("translate: empty translation")

// Translator translates text from source to target language codes.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// New builds the translator chain from cfg. It returns nil when translation
// is disabled, which callers report as an unavailable translator.
func New(cfg *config.Config) (Translator, error) {
	if strings.TrimSpace(cfg.Translate.Target) == "" {
		return nil, nil
	}
	timeout := time.Duration(cfg.Translate.TimeoutSec * float64(time.Second))
	var chain Chain
	for _, name := range cfg.Translate.Backends {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "none", "":
			continue
		case "google":
			g, err := NewGoogle(cfg.Translate.Endpoint, cfg.Translate.Proxy, timeout)
			if err != nil {
				return nil, err
			}
			chain = append(chain, g)
		default:
			return nil, fmt.Errorf("unknown translate backend %q", name)
		}
	}
	switch len(chain) {
	case 0:
		return nil, nil
	case 1:
		return chain[0], nil
	}
	return chain, nil
}

// Chain tries each translator in order and returns the first success.
type Chain []Translator

func (c Chain) Translate(ctx context.Context, text, source, target string) (string, error) {
	var errs []error
	for _, t := range c {
		out, err := t.Translate(ctx, text, source, target)
		if err == nil {
			return out, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return "", errors.New("translate: no backends configured")
	}
	return "", errors.Join(errs...)
}
