// Package tui implements the live lock watch screen.
package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"github.com/partvault/partvault/internal/lockmgr"
	"github.com/partvault/partvault/internal/store"
	"github.com/partvault/partvault/internal/util"
)

// LockLister supplies the current set of active locks.
type LockLister interface {
	Locks(ctx context.Context) ([]lockmgr.Lock, error)
}

// How often the screen refreshes when no filesystem event arrives.
// Each refresh synchronizes with the remote, so this stays coarse.
const refreshInterval = 10 * time.Second

// Messages

type tickMsg time.Time
type locksMsg []lockmgr.Lock
type errMsg struct {
	err error
}
type fsEventMsg struct{}

// Model is the bubbletea model for the watch screen.
type Model struct {
	source  LockLister
	watcher *fsnotify.Watcher

	locks     []lockmgr.Lock
	err       error
	width     int
	height    int
	refreshed time.Time
}

// NewModel builds a watch model. repoRoot is the managed repository; when
// non-empty its record directory is watched so lock changes made by this
// process repaint immediately. A nil watcher falls back to timed refresh.
func NewModel(source LockLister, repoRoot string) Model {
	m := Model{source: source, width: 100, height: 24}

	if repoRoot != "" {
		if w, err := fsnotify.NewWatcher(); err == nil {
			if err := w.Add(filepath.Join(repoRoot, store.LocksDir)); err == nil {
				m.watcher = w
			} else {
				_ = w.Close()
			}
		}
	}
	return m
}

// Close releases the filesystem watcher.
func (m Model) Close() {
	if m.watcher != nil {
		_ = m.watcher.Close()
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.refresh(), tick()}
	if m.watcher != nil {
		cmds = append(cmds, m.waitForChange())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Close()
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(m.refresh(), tick())

	case fsEventMsg:
		return m, tea.Batch(m.refresh(), m.waitForChange())

	case locksMsg:
		m.locks = msg
		m.err = nil
		m.refreshed = time.Now()

	case errMsg:
		m.err = msg.err
		m.refreshed = time.Now()
	}

	return m, nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("8"))
	holderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// View implements tea.Model.
func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("partvault watch"))
	sb.WriteByte('\n')

	if m.err != nil {
		sb.WriteString(errorStyle.Render(fmt.Sprintf("refresh failed: %v", m.err)))
		sb.WriteByte('\n')
	}

	if len(m.locks) == 0 {
		sb.WriteString("\nNo documents checked out\n")
	} else {
		fileW, holderW := len("FILE"), len("HOLDER")
		for _, l := range m.locks {
			fileW = max(fileW, len(l.Filename))
			holderW = max(holderW, len(l.Holder))
		}

		sb.WriteByte('\n')
		sb.WriteString(headerStyle.Render(fmt.Sprintf("%-*s  %-*s  %-20s  %s", fileW, "FILE", holderW, "HOLDER", "SINCE", "MESSAGE")))
		sb.WriteByte('\n')
		for _, l := range m.locks {
			line := fmt.Sprintf("%-*s  %s  %-20s  %s",
				fileW, l.Filename,
				holderStyle.Render(fmt.Sprintf("%-*s", holderW, l.Holder)),
				l.AcquiredAt.Format("2006-01-02 15:04:05"),
				l.Message)
			sb.WriteString(strings.TrimRight(util.TruncateANSI(line, m.width), " "))
			sb.WriteByte('\n')
		}
	}

	footer := "q quit · r refresh"
	if !m.refreshed.IsZero() {
		footer += " · updated " + m.refreshed.Format("15:04:05")
	}
	sb.WriteByte('\n')
	sb.WriteString(footerStyle.Render(footer))
	sb.WriteByte('\n')
	return sb.String()
}

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		locks, err := m.source.Locks(context.Background())
		if err != nil {
			return errMsg{err: err}
		}
		return locksMsg(locks)
	}
}

// waitForChange blocks on the next filesystem event in the lock directory.
func (m Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-m.watcher.Events; !ok {
			return nil
		}
		return fsEventMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run drives the watch screen until the user quits.
func Run(source LockLister, repoRoot string) error {
	m := NewModel(source, repoRoot)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
