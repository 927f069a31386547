package runner

import (
	"bufio"
	"fmt"
	"io"

	"github.com/garak-ctl/garak-ctl/internal/parser"
)

// splitLinesAndCR is a bufio.SplitFunc that breaks on '\n' or '\r',
// whichever comes first. ENGINE rewrites its tqdm progress bars with
// bare carriage returns, so treating only '\n' as a delimiter would
// starve the parser of every intermediate percentage until the bar's
// line finally ends — carriage return must be a primary delimiter too
// (spec.md §4.1).
func splitLinesAndCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// runReader drains stdout line-by-line, feeds each non-empty line to p,
// and hands each resulting event to onEvent (which both folds it into
// the live snapshot and enqueues it for streaming) plus a recorder
// callback for each raw line (used to maintain the bounded
// recent_output ring buffer). Returns once EOF is observed; it does
// not wait for the child's exit status — that is the caller's job
// once runReader returns.
func runReader(stdout io.Reader, p *parser.Parser, onEvent func(parser.Event), onLine func(line string)) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitLinesAndCR)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if onLine != nil {
			onLine(line)
		}
		if ev, ok := p.ParseLine(line); ok {
			onEvent(ev)
		}
	}
}

// synthesizeFailure builds the error message for a nonzero exit, per
// spec.md §4.1: the exit code plus the last 20 recorded output lines.
func synthesizeFailure(exitCode int, recentLines []string) string {
	msg := fmt.Sprintf("ENGINE exited with code %d", exitCode)
	if len(recentLines) == 0 {
		return msg
	}
	tail := recentLines
	if len(tail) > 20 {
		tail = tail[len(tail)-20:]
	}
	for _, l := range tail {
		msg += "\n" + l
	}
	return msg
}
