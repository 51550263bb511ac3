package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/term"

	"github.com/aretw0/headless/internal/logging"
	"github.com/aretw0/headless/internal/presentation/tui"
	"github.com/aretw0/headless/pkg/domain"
	"github.com/aretw0/headless/pkg/state"
)

// Chat is the conversation surface driven by the REPL.
type Chat interface {
	State() domain.State
	SetContext(ctx any)
	AddListener(l state.Listener) state.Unsubscribe
	GetNextMessage(ctx context.Context, text string, source domain.MessageSource) (*domain.MessageResponse, error)
	StreamNextMessage(ctx context.Context, text string, source domain.MessageSource) (*domain.MessageResponse, error)
	RestartConversation(ctx context.Context)
	ActiveClient() domain.ClientKind
}

// REPLOptions configures a REPL.
type REPLOptions struct {
	In  io.Reader
	Out io.Writer
	// Interactive enables the prompt and markdown rendering.
	Interactive bool
	// Stream applies bot replies token by token.
	Stream bool
	// JSON reads JSON-Lines input and writes every message as one JSON line.
	JSON   bool
	Logger *slog.Logger
}

// REPL reads user lines and prints the conversation.
type REPL struct {
	chat   Chat
	opts   REPLOptions
	render func(string) (string, error)
	logger *slog.Logger

	inFlight atomic.Bool
	mu       sync.Mutex
	printed  int
	encoder  *json.Encoder
}

// Input is one JSON-Lines request. A bare JSON string or plain text is also
// accepted and sent as Text.
type Input struct {
	Text    string `json:"text"`
	Command string `json:"command,omitempty"`
}

// NewREPL creates a REPL over chat.
func NewREPL(chat Chat, opts REPLOptions) *REPL {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	r := &REPL{chat: chat, opts: opts, logger: opts.Logger}
	switch {
	case opts.JSON:
		r.encoder = json.NewEncoder(opts.Out)
	case opts.Interactive:
		r.render = tui.NewRenderer()
	}
	return r
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Run prints the restored conversation, then processes input until EOF,
// /quit or ctx cancellation.
func (r *REPL) Run(ctx context.Context) error {
	r.flush(true)

	// Agent replies arrive asynchronously; bot replies are printed once the
	// request returns so that streamed text shows up whole.
	unwatch := state.Watch(r.chat, state.Messages, func([]domain.Message) {
		if !r.inFlight.Load() {
			r.flush(false)
		}
	})
	defer unwatch()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r.opts.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		readErr <- err
	}()

	for {
		r.prompt()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case line := <-lines:
			quit, err := r.handle(ctx, r.parse(line))
			if err != nil {
				printSystemMessage(r.opts.Out, "Error: %v", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func (r *REPL) prompt() {
	if r.opts.Interactive && !r.opts.JSON {
		fmt.Fprint(r.opts.Out, "> ")
	}
}

// parse turns an input line into user text or a /command.
func (r *REPL) parse(line string) string {
	line = strings.TrimSpace(line)
	if !r.opts.JSON {
		return line
	}
	var str string
	if err := json.Unmarshal([]byte(line), &str); err == nil {
		return strings.TrimSpace(str)
	}
	var in Input
	if err := json.Unmarshal([]byte(line), &in); err == nil {
		if in.Command != "" {
			return "/" + strings.TrimPrefix(in.Command, "/")
		}
		return strings.TrimSpace(in.Text)
	}
	// Fallback: plain text
	return line
}

// handle processes one input line and reports whether the REPL should stop.
func (r *REPL) handle(ctx context.Context, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if strings.HasPrefix(line, "/") {
		return r.command(ctx, line)
	}
	line, err := SanitizeInput(line)
	if err != nil {
		return false, err
	}

	r.inFlight.Store(true)
	if r.opts.Stream && r.chat.ActiveClient() == domain.ClientBot {
		_, err = r.chat.StreamNextMessage(ctx, line, domain.SourceUser)
	} else {
		_, err = r.chat.GetNextMessage(ctx, line, domain.SourceUser)
	}
	r.inFlight.Store(false)
	r.flush(false)
	return false, err
}

func (r *REPL) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/restart":
		r.chat.RestartConversation(ctx)
		r.mu.Lock()
		r.printed = 0
		r.mu.Unlock()
		printSystemMessage(r.opts.Out, "Conversation restarted.")
	case "/state":
		data, err := json.MarshalIndent(r.chat.State(), "", "  ")
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.opts.Out, string(data))
	case "/context":
		var v any
		if err := json.Unmarshal([]byte(arg), &v); err != nil {
			return false, fmt.Errorf("invalid context JSON: %w", err)
		}
		r.chat.SetContext(v)
		printSystemMessage(r.opts.Out, "Context updated.")
	case "/goal":
		notes, err := r.chat.State().Conversation.Notes.View()
		if err != nil {
			return false, err
		}
		printSystemMessage(r.opts.Out, "Current goal: %s", notes.CurrentGoal)
	case "/help":
		printSystemMessage(r.opts.Out, "Commands: /restart /state /context <json> /goal /quit")
	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
	return false, nil
}

// flush prints the messages not printed yet. User messages are skipped unless
// includeUser is set, since the user already typed them.
func (r *REPL) flush(includeUser bool) {
	msgs := r.chat.State().Conversation.Messages

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.printed > len(msgs) {
		r.printed = 0
	}
	for _, m := range msgs[r.printed:] {
		if m.Source == domain.SourceUser && !includeUser {
			continue
		}
		r.print(m)
	}
	r.printed = len(msgs)
}

func (r *REPL) print(m domain.Message) {
	if r.encoder != nil {
		if err := r.encoder.Encode(m); err != nil {
			r.logger.Warn("Failed to write message", "err", err)
		}
		return
	}
	if r.render == nil {
		fmt.Fprintf(r.opts.Out, "%s: %s\n", m.Source, m.Text)
		return
	}
	text, err := r.render(m.Text)
	if err != nil {
		r.logger.Debug("Markdown rendering failed", "err", err)
	}
	fmt.Fprintf(r.opts.Out, "%s %s\n", tui.Label(m.Source), text)
}
