package sink

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Console prints each result as a small block.
type Console struct {
	w io.Writer
}

func NewConsole(w io.Writer) *Console { return &Console{w: w} }

func (c *Console) OnResult(_ context.Context, r Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "── #%d %s (%.1fs) ──\n", r.Seq, r.Timestamp.Format("15:04:05"), r.Duration.Seconds())
	fmt.Fprintf(&b, "  %s\n", r.Original)
	if r.Translated != "" {
		fmt.Fprintf(&b, "  %s\n", r.Translated)
	}
	_, err := io.WriteString(c.w, b.String())
	return err
}
