package askdb

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/pterm/pterm"

	"github.com/askdb/askdb/internal/chat"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/storage"
)

type renderer struct {
	out      io.Writer
	markdown *glamour.TermRenderer
	showSQL  bool
	prompts  bool
}

// newRenderer renders assistant markdown with glamour on a terminal and prints
// it verbatim otherwise.
func newRenderer(out io.Writer, interactive, showSQL bool) *renderer {
	r := &renderer{out: out, showSQL: showSQL, prompts: interactive}
	if interactive {
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(100),
		)
		if err == nil {
			r.markdown = md
		}
	}
	return r
}

func (r *renderer) banner() {
	_, _ = fmt.Fprintln(r.out, pterm.DefaultSection.Sprint("Ask the Database"))
	_, _ = fmt.Fprintln(r.out, pterm.Info.Sprint("Type a question, /schema, /reset or /quit."))
}

func (r *renderer) prompt() {
	if r.prompts {
		_, _ = fmt.Fprint(r.out, pterm.FgCyan.Sprint("you> "))
	}
}

func (r *renderer) message(message chat.Message) {
	if message.Role == chat.RoleUser {
		_, _ = fmt.Fprintln(r.out, pterm.FgCyan.Sprint("you> ")+message.Content)
		return
	}
	r.assistant(message.Content)
}

func (r *renderer) assistant(text string) {
	if r.markdown != nil {
		if rendered, err := r.markdown.Render(text); err == nil {
			_, _ = fmt.Fprint(r.out, rendered)
			return
		}
	}
	_, _ = fmt.Fprintln(r.out, text)
}

func (r *renderer) turn(turn chat.Turn) {
	r.assistant(turn.Reply)
	if r.showSQL && turn.SQL != "" {
		details := turn.SQL
		if turn.Result != "" {
			details += "\n\n" + turn.Result
		}
		_, _ = fmt.Fprintln(r.out, pterm.DefaultBox.WithTitle("SQL").Sprint(details))
	}
}

func (r *renderer) schema(description schema.Description) {
	if !description.Available() {
		_, _ = fmt.Fprintln(r.out, pterm.Error.Sprint(description.Text))
		return
	}
	_, _ = fmt.Fprintln(r.out, pterm.Success.Sprintf("Schema loaded: %d table(s)", description.Tables))
	_, _ = fmt.Fprintln(r.out, description.Text)
}

func (r *renderer) info(text string) {
	_, _ = fmt.Fprintln(r.out, pterm.Info.Sprint(text))
}

func (r *renderer) warn(text string) {
	_, _ = fmt.Fprintln(r.out, pterm.Warning.Sprint(text))
}

func (r *renderer) objects(objects []storage.ObjectInfo) error {
	if len(objects) == 0 {
		r.info("No archived sessions.")
		return nil
	}
	data := pterm.TableData{{"KEY", "SIZE", "MODIFIED"}}
	for _, obj := range objects {
		modified := ""
		if !obj.LastModified.IsZero() {
			modified = obj.LastModified.UTC().Format("2006-01-02 15:04:05")
		}
		data = append(data, []string{obj.Key, strconv.FormatInt(obj.Size, 10), modified})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(r.out, table)
	return nil
}

func (r *renderer) transcript(transcript chat.Transcript) {
	header := fmt.Sprintf("session %s, %s to %s",
		transcript.SessionID,
		transcript.StartedAt.UTC().Format("2006-01-02 15:04"),
		transcript.EndedAt.UTC().Format("15:04"),
	)
	_, _ = fmt.Fprintln(r.out, pterm.DefaultSection.Sprint(header))
	for _, message := range transcript.Messages {
		label := strings.ToUpper(string(message.Role))
		_, _ = fmt.Fprintln(r.out, pterm.Bold.Sprint(label+":"))
		r.assistant(message.Content)
	}
}
