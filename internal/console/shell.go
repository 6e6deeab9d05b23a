package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/persondetect/detect-console/internal/history"
)

const helpText = `Commands:
  select <path>                    choose an image to upload
  upload                           run detection on the selected image
  reset-upload                     discard the selected image or result
  show-upload                      show the upload state
  filter <field> <value|->         edit a pending filter (min-people, max-people, min-confidence)
  apply                            apply the pending filters
  clear                            clear all filters
  page <n>                         show page n
  refresh                          reload the current page
  list                             show the current page
  delete <id>                      delete a detection
  help                             show this help
  quit                             leave the console
`

// errQuit ends the command loop.
var errQuit = errors.New("quit")

// Shell reads commands line by line and drives the page. User-facing failures are
// reported by the components through their Notifier; the shell only prints
// usage problems of its own.
type Shell struct {
	page     *Page
	renderer *Renderer
	in       *bufio.Reader
	out      io.Writer
	logger   *slog.Logger
	prompt   string
}

// NewShell constructs a Shell. in must be the reader shared with any terminal dialogs.
func NewShell(page *Page, renderer *Renderer, in *bufio.Reader, out io.Writer, logger *slog.Logger) *Shell {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shell{page: page, renderer: renderer, in: in, out: out, logger: logger, prompt: "detect> "}
}

// Run mounts the page, shows the first page of history and executes commands until
// quit, end of input or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	s.page.Mount(ctx)
	s.showHistory()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(s.out, s.prompt)
		line, err := s.in.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			if execErr := s.Execute(ctx, line); errors.Is(execErr, errQuit) {
				return nil
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}
	}
}

// Execute runs one command line.
func (s *Shell) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch cmd {
	case "select":
		if len(args) == 0 {
			return s.usage("select <path>")
		}
		path := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		if err = s.page.Uploader.SelectPath(ctx, path); err == nil {
			s.showUpload()
		}
	case "upload":
		if err = s.page.Uploader.Submit(ctx); err == nil {
			s.showUpload()
			s.showHistory()
		}
	case "reset-upload":
		s.page.Uploader.Reset(ctx)
		s.showUpload()
	case "show-upload":
		s.showUpload()
	case "filter":
		if len(args) != 2 {
			return s.usage("filter min-people|max-people|min-confidence <value|->")
		}
		if err = s.editFilter(args[0], args[1]); err != nil {
			fmt.Fprintf(s.out, "! %s\n", err)
			return err
		}
	case "apply":
		if err = s.page.History.Apply(ctx); err == nil {
			s.showHistory()
		}
	case "clear":
		s.page.History.Reset(ctx)
		s.showHistory()
	case "page":
		if len(args) != 1 {
			return s.usage("page <n>")
		}
		n, convErr := strconv.Atoi(args[0])
		if convErr != nil {
			return s.usage("page <n>")
		}
		if err = s.page.History.SetPage(ctx, n); err == nil {
			s.showHistory()
		}
	case "refresh":
		s.page.History.Refresh(ctx)
		s.showHistory()
	case "list":
		s.showHistory()
	case "delete":
		if len(args) != 1 {
			return s.usage("delete <id>")
		}
		id, convErr := strconv.ParseInt(args[0], 10, 64)
		if convErr != nil {
			return s.usage("delete <id>")
		}
		var confirmed bool
		if confirmed, err = s.page.History.Delete(ctx, id); err == nil && confirmed {
			s.showHistory()
		}
	case "help", "?":
		fmt.Fprint(s.out, helpText)
	case "quit", "exit":
		return errQuit
	default:
		fmt.Fprintf(s.out, "! unknown command %q, type \"help\"\n", cmd)
		return fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		s.logger.Debug("command failed", slog.String("command", cmd), slog.Any("error", err))
	}
	return err
}

func (s *Shell) editFilter(name, raw string) error {
	field, err := parseField(name)
	if err != nil {
		return err
	}
	if raw == "-" {
		s.page.History.ClearField(field)
		return nil
	}
	switch field {
	case history.FieldMinPeople, history.FieldMaxPeople:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s must be a whole number", field)
		}
		if field == history.FieldMinPeople {
			s.page.History.SetMinPeople(n)
		} else {
			s.page.History.SetMaxPeople(n)
		}
	case history.FieldMinConfidence:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number", field)
		}
		s.page.History.SetMinConfidence(v)
	}
	return nil
}

func parseField(name string) (history.Field, error) {
	switch strings.ToLower(name) {
	case "min-people", "min_people":
		return history.FieldMinPeople, nil
	case "max-people", "max_people":
		return history.FieldMaxPeople, nil
	case "min-confidence", "min_confidence":
		return history.FieldMinConfidence, nil
	}
	return 0, fmt.Errorf("unknown filter %q", name)
}

func (s *Shell) usage(form string) error {
	fmt.Fprintf(s.out, "usage: %s\n", form)
	return fmt.Errorf("usage: %s", form)
}

func (s *Shell) showHistory() {
	if err := s.renderer.History(s.out, s.page.History.Snapshot(), s.page.History.PageNumbers()); err != nil {
		s.logger.Warn("failed to render history", slog.Any("error", err))
	}
}

func (s *Shell) showUpload() {
	if err := s.renderer.Upload(s.out, s.page.Uploader.View()); err != nil {
		s.logger.Warn("failed to render upload", slog.Any("error", err))
	}
}
