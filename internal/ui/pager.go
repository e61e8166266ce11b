package ui

import (
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// PagerOptions controls whether a report is paged.
type PagerOptions struct {
	NoPager bool // --no-pager
	JSON    bool // --json output is never paged
}

// pagerEnv is what the paging decision depends on.
type pagerEnv struct {
	tty           bool
	color         bool
	width, height int
	getenv        func(string) string
}

func currentPagerEnv() pagerEnv {
	env := pagerEnv{tty: IsTerminal(), color: ShouldUseColor(), getenv: os.Getenv}
	if env.tty {
		fd := int(os.Stdout.Fd()) // #nosec G115 -- fd fits in int
		if w, h, err := term.GetSize(fd); err == nil {
			env.width, env.height = w, h
		}
	}
	return env
}

// page reports whether content should go through the pager: only on a
// terminal, and only when it would scroll past one screen.
func (e pagerEnv) page(content string, opts PagerOptions) bool {
	if opts.NoPager || opts.JSON || !e.tty || e.getenv("LENS_NO_PAGER") != "" {
		return false
	}
	if e.height <= 0 {
		return true
	}
	return displayRows(content, e.width) >= e.height
}

// command returns the pager argv. LENS_PAGER wins over PAGER; the default is
// less, passing escape sequences through only when the report is colored.
func (e pagerEnv) command() []string {
	for _, name := range []string{"LENS_PAGER", "PAGER"} {
		if argv := strings.Fields(e.getenv(name)); len(argv) > 0 {
			return argv
		}
	}
	return []string{"less", e.lessFlags()}
}

func (e pagerEnv) lessFlags() string {
	if e.color {
		return "-FRX"
	}
	return "-FX"
}

// displayRows counts the terminal rows content occupies once lines wider
// than width wrap. Escape sequences take no columns.
func displayRows(content string, width int) int {
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return 0
	}
	rows := 0
	for _, line := range strings.Split(content, "\n") {
		w := lipgloss.Width(line)
		if width <= 0 || w <= width {
			rows++
			continue
		}
		rows += (w + width - 1) / width
	}
	return rows
}

// ToPager writes content to w, or through the pager when stdout is a
// terminal and the report is taller than it.
func ToPager(w io.Writer, content string, opts PagerOptions) error {
	env := currentPagerEnv()
	if !env.page(content, opts) {
		_, err := io.WriteString(w, content)
		return err
	}

	argv := env.command()
	cmd := exec.Command(argv[0], argv[1:]...) // #nosec G204 -- pager comes from LENS_PAGER or PAGER
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if os.Getenv("LESS") == "" {
		cmd.Env = append(cmd.Env, "LESS="+env.lessFlags())
	}
	return cmd.Run()
}
