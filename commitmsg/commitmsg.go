package commitmsg

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/valyala/fasttemplate"
)

const (
	startTag = "{{"
	endTag   = "}}"
)

// ErrUnknownPlaceholder is returned for a template tag
// that is not a known field.
var ErrUnknownPlaceholder = errors.New("unknown placeholder")

// Default templates.
const (
	DefaultCommit = "Menambahkan kata baru: {{kata}} ({{bahasa}})"
	DefaultTitle  = "[Usulan Kata] {{kata}} ({{bahasa}})"
	DefaultBody   = "User mengusulkan kata baru:\n" +
		"- **Bahasa:** {{bahasa}}\n" +
		"- **Kata:** {{kata}}\n" +
		"- **Arti:** {{arti}}\n" +
		"\n" +
		"Mohon di-review!"
	DefaultSuccess = "Usulan berhasil dikirim dan " +
		"Pull Request telah dibuat!"
)

// Fields are the values available to templates.
type Fields struct {
	Kata   string
	Bahasa string
	Arti   string
	Branch string
}

func (f Fields) lookup(tag string) (string, bool) {
	switch strings.TrimSpace(tag) {
	case "kata":
		return f.Kata, true
	case "bahasa":
		return f.Bahasa, true
	case "arti":
		return f.Arti, true
	case "branch":
		return f.Branch, true
	default:
		return "", false
	}
}

// Templates holds one template per rendered text. Empty
// fields fall back to the defaults.
type Templates struct {
	Commit  string `yaml:"commit"`
	Title   string `yaml:"title"`
	Body    string `yaml:"body"`
	Success string `yaml:"success"`
}

// Messages are rendered texts.
type Messages struct {
	Commit  string
	Title   string
	Body    string
	Success string
}

// WithDefaults returns t with empty templates replaced by
// the defaults.
func (t Templates) WithDefaults() Templates {
	if t.Commit == "" {
		t.Commit = DefaultCommit
	}

	if t.Title == "" {
		t.Title = DefaultTitle
	}

	if t.Body == "" {
		t.Body = DefaultBody
	}

	if t.Success == "" {
		t.Success = DefaultSuccess
	}

	return t
}

// Validate checks that every template parses and only
// uses known placeholders.
func (t Templates) Validate() error {
	const errCtx = "validating templates"

	_, err := t.Render(Fields{})
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// Render expands every template against f. Title and
// commit message are folded onto one line so user input
// cannot inject extra header lines.
func (t Templates) Render(f Fields) (Messages, error) {
	const errCtx = "rendering messages"

	t = t.WithDefaults()

	var msgs Messages

	targets := []struct {
		name    string
		tpl     string
		out     *string
		oneLine bool
	}{
		{"commit", t.Commit, &msgs.Commit, true},
		{"title", t.Title, &msgs.Title, true},
		{"body", t.Body, &msgs.Body, false},
		{"success", t.Success, &msgs.Success, false},
	}

	for _, tg := range targets {
		out, err := expand(tg.tpl, f)
		if err != nil {
			return Messages{}, fmt.Errorf(
				"%s: %s: %w", errCtx, tg.name, err,
			)
		}

		if tg.oneLine {
			out = foldLines(out)
		}

		*tg.out = out
	}

	return msgs, nil
}

// foldLines joins the non-blank lines of s with a single
// space. Spacing inside a line is kept as written.
func foldLines(s string) string {
	lines := strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == '\r'
	})

	kept := lines[:0]

	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}

	return strings.Join(kept, " ")
}

func expand(tpl string, f Fields) (string, error) {
	pt, err := fasttemplate.NewTemplate(tpl, startTag, endTag)
	if err != nil {
		return "", err
	}

	return pt.ExecuteFuncStringWithErr(
		func(w io.Writer, tag string) (int, error) {
			val, ok := f.lookup(tag)
			if !ok {
				return 0, fmt.Errorf(
					"%w: %q", ErrUnknownPlaceholder, tag,
				)
			}

			return io.WriteString(w, val)
		},
	)
}
