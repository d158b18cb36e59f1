package chat

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

// ConsoleAuthor is used for lines that name no author.
const ConsoleAuthor = "console"

// Console reads "author: text" lines, one message per line. It stands in
// for a live chat during local runs.
type Console struct {
	in  io.Reader
	log *logger.Logger
	now func() time.Time
}

// NewConsole creates a console chat source reading from in.
func NewConsole(in io.Reader, log *logger.Logger) *Console {
	return &Console{in: in, log: log, now: time.Now}
}

// Run forwards each non-empty line until in is exhausted or ctx is
// cancelled.
func (c *Console) Run(ctx context.Context, out chan<- domain.ChatMessage) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	c.log.Info("chat: reading console input (author: text)")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			msg, ok := ParseLine(line)
			if !ok {
				continue
			}
			msg.Time = c.now()
			select {
			case out <- msg:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// ParseLine splits "author: text". A line without an author prefix is
// attributed to ConsoleAuthor. Blank lines are rejected.
func ParseLine(line string) (domain.ChatMessage, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return domain.ChatMessage{}, false
	}

	author, text, found := strings.Cut(line, ":")
	author, text = strings.TrimSpace(author), strings.TrimSpace(text)
	if !found || author == "" || strings.ContainsAny(author, " \t") {
		return domain.ChatMessage{Author: ConsoleAuthor, Text: line}, true
	}
	if text == "" {
		return domain.ChatMessage{}, false
	}
	return domain.ChatMessage{Author: author, Text: text}, true
}
