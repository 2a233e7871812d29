package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// commentPrefix starts a line that scripts skip.
const commentPrefix = "--"

// RunScript feeds r to the session one line at a time. Blank lines and lines
// starting with "--" are skipped. It stops at the first failing line, or
// at .quit, and returns that failure.
func RunScript(ctx context.Context, s *Session, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}
		if !s.Handle(ctx, line) {
			return nil
		}
		if err := s.Err(); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}
