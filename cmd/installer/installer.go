// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/yolokit/internal/torch"
	"github.com/jeranaias/yolokit/internal/util"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	colorBrand = lipgloss.Color("#F97316")
	colorInfo  = lipgloss.Color("#0EA5E9")
	colorOK    = lipgloss.Color("#22C55E")
	colorWarn  = lipgloss.Color("#EAB308")
	colorFail  = lipgloss.Color("#DC2626")
	colorMuted = lipgloss.Color("#71717A")

	titleStyle      = fg(colorBrand).Bold(true).MarginBottom(1)
	subtitleStyle   = fg(colorMuted).Italic(true)
	successStyle    = fg(colorOK).Bold(true)
	errorStyle      = fg(colorFail).Bold(true)
	warningStyle    = fg(colorWarn)
	highlightStyle  = fg(colorInfo).Bold(true)
	dimStyle        = fg(colorMuted)
	selectedStyle   = fg(colorBrand).Bold(true)
	unselectedStyle = dimStyle

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBrand).
			Padding(1, 2)
)

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

// checkLook is how each check status is drawn.
var checkLook = map[string]struct {
	icon  string
	style lipgloss.Style
}{
	"pass": {"[OK]", successStyle},
	"warn": {"[!!]", warningStyle},
	"fail": {"[FAIL]", errorStyle},
}

const logo = `
    __  ______  __    ____  __ __ ____________
    \ \/ / __ \/ /   / __ \/ //_//  _/_  __/
     \  / / / / /   / / / / ,<   / /  / /
     / / /_/ / /___/ /_/ / /| |_/ /  / /
    /_/\____/_____/\____/_/ |_/___/ /_/
`

const tagline = "PyTorch setup for YOLO training"

// =============================================================================
// INSTALLER MODEL
// =============================================================================

// Phase represents the current installation phase
type Phase int

const (
	PhaseWelcome Phase = iota
	PhaseSystemCheck
	PhasePlan
	PhaseInstall
	PhaseComplete
)

// planChoice is one entry of the plan menu; a nil plan skips the install.
type planChoice struct {
	label string
	plan  *torch.Plan
}

// tailWriter keeps the last non-empty line written to it.
type tailWriter struct {
	mu   sync.Mutex
	last string
	buf  []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		idx := strings.IndexAny(string(w.buf), "\r\n")
		if idx < 0 {
			break
		}
		if line := strings.TrimSpace(string(w.buf[:idx])); line != "" {
			w.last = line
		}
		w.buf = w.buf[idx+1:]
	}
	return len(p), nil
}

// Last returns the most recent line.
func (w *tailWriter) Last() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Installer is the main installer model
type Installer struct {
	env *env

	phase        Phase
	width        int
	height       int
	spinner      spinner.Model
	progress     progress.Model
	checks       []CheckResult
	currentCheck int

	choices  []planChoice
	selected int

	tail    *tailWriter
	cancel  context.CancelFunc
	result  installResult
	skipped bool

	tip int
}

// NewInstaller creates a new installer instance
func NewInstaller(e *env) *Installer {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = fg(colorBrand)

	p := progress.New(progress.WithDefaultGradient())

	checks := make([]CheckResult, len(checkNames))
	for idx, name := range checkNames {
		checks[idx] = CheckResult{Name: name, Status: "checking"}
	}

	return &Installer{
		env:      e,
		phase:    PhaseWelcome,
		spinner:  s,
		progress: p,
		checks:   checks,
		tail:     &tailWriter{},
	}
}

// Init initializes the installer
func (i *Installer) Init() tea.Cmd {
	return i.spinner.Tick
}

// =============================================================================
// UPDATE
// =============================================================================

// checkCompleteMsg signals a check is complete
type checkCompleteMsg struct {
	index  int
	result CheckResult
}

// installCompleteMsg signals installation is complete
type installCompleteMsg struct {
	result installResult
}

// Update handles messages
func (i *Installer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return i.handleKey(msg)

	case tea.WindowSizeMsg:
		i.resize(msg.Width, msg.Height)
		return i, i.spinner.Tick

	case spinner.TickMsg:
		var cmd tea.Cmd
		i.spinner, cmd = i.spinner.Update(msg)
		return i, cmd

	case checkCompleteMsg:
		i.checks[msg.index] = msg.result
		i.currentCheck++
		if i.currentCheck == len(i.checks) {
			i.choices = i.planChoices()
			return i, nil
		}
		return i, i.runCheck(i.currentCheck)

	case installCompleteMsg:
		i.result = msg.result
		i.cancel = nil
		i.phase = PhaseComplete
		return i, nil
	}

	return i, nil
}

func (i *Installer) resize(width, height int) {
	i.width, i.height = width, height
	i.progress.Width = clamp(width-20, 20, 60)
	boxStyle = boxStyle.Width(clamp(width-16, 40, 70))
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// handleKey processes key presses
func (i *Installer) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if i.cancel != nil {
			// Wait for pip to exit; installCompleteMsg follows.
			i.cancel()
			return i, nil
		}
		return i, tea.Quit

	case "enter", " ":
		return i.handleSelect()

	case "up", "k":
		if i.phase == PhasePlan && i.selected > 0 {
			i.selected--
		}
		return i, nil

	case "down", "j":
		if i.phase == PhasePlan && i.selected < len(i.choices)-1 {
			i.selected++
		}
		return i, nil

	case "left", "h":
		if i.phase == PhaseComplete && i.tip > 0 {
			i.tip--
		}
		return i, nil

	case "right", "l", "tab":
		if i.phase == PhaseComplete && i.tip < len(nextSteps)-1 {
			i.tip++
		}
		return i, nil
	}

	return i, nil
}

// handleSelect processes selection/enter
func (i *Installer) handleSelect() (tea.Model, tea.Cmd) {
	switch i.phase {
	case PhaseWelcome:
		i.phase = PhaseSystemCheck
		return i, i.runCheck(0)

	case PhaseSystemCheck:
		if i.currentCheck >= len(i.checks) {
			i.phase = PhasePlan
		}
		return i, nil

	case PhasePlan:
		choice := i.choices[i.selected]
		if choice.plan == nil {
			i.skipped = true
			i.phase = PhaseComplete
			return i, nil
		}
		i.phase = PhaseInstall
		return i, tea.Batch(i.spinner.Tick, i.runInstall(*choice.plan))

	case PhaseComplete:
		return i, tea.Quit
	}

	return i, nil
}

// planChoices offers the detected plan, CPU wheels when the detected plan
// is not already CPU, and skipping.
func (i *Installer) planChoices() []planChoice {
	detected := i.env.plan
	choices := []planChoice{{label: "Recommended: " + planLabel(detected), plan: &detected}}
	if !detected.CPU() {
		cpu := torch.PlanFor("", i.env.options())
		choices = append(choices, planChoice{label: planLabel(cpu), plan: &cpu})
	}
	return append(choices, planChoice{label: "Skip PyTorch installation"})
}

func planLabel(p torch.Plan) string {
	if p.CPU() {
		return "CPU wheels"
	}
	return fmt.Sprintf("CUDA %s wheels (%s)", p.CUDAVersion, p.Tag)
}

// =============================================================================
// COMMANDS
// =============================================================================

// runCheck runs a system check
func (i *Installer) runCheck(index int) tea.Cmd {
	return func() tea.Msg {
		return checkCompleteMsg{index: index, result: i.env.runCheck(context.Background(), index)}
	}
}

// runInstall runs pip in the background.
func (i *Installer) runInstall(plan torch.Plan) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	i.cancel = cancel
	return func() tea.Msg {
		defer cancel()
		return installCompleteMsg{result: i.env.install(ctx, plan, i.tail)}
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the installer
func (i *Installer) View() string {
	switch i.phase {
	case PhaseWelcome:
		return i.viewWelcome()
	case PhaseSystemCheck:
		return i.viewSystemCheck()
	case PhasePlan:
		return i.viewPlan()
	case PhaseInstall:
		return i.viewInstall()
	case PhaseComplete:
		return i.viewComplete()
	}
	return ""
}

func (i *Installer) viewWelcome() string {
	var s strings.Builder

	s.WriteString(titleStyle.UnsetMarginBottom().Render(logo))
	s.WriteString("\n")
	s.WriteString(subtitleStyle.Render("    " + tagline))
	s.WriteString("\n\n")
	s.WriteString(dimStyle.Render(fmt.Sprintf("    Version %s", version)))
	s.WriteString("\n\n")

	welcomeText := `
This installer will:

  * Check Python, the GPU and free disk space
  * Pick the PyTorch wheels that match your CUDA driver
  * Install them with pip into ` + i.env.python + `
  * Verify that torch imports
`
	s.WriteString(boxStyle.Render(welcomeText))
	s.WriteString("\n\n")

	s.WriteString(highlightStyle.Render("  Press ENTER to begin"))
	s.WriteString(dimStyle.Render("  |  Press Q to quit"))

	return i.center(s.String())
}

func (i *Installer) viewSystemCheck() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("  System Check"))
	s.WriteString("\n\n")

	for idx, check := range i.checks {
		s.WriteString(i.checkLine(idx, check))
	}
	s.WriteString("\n")
	s.WriteString("  " + i.progress.ViewAs(float64(i.currentCheck)/float64(len(i.checks))))
	s.WriteString("\n\n")

	if i.currentCheck >= len(i.checks) {
		if failed(i.checks) {
			s.WriteString(warningStyle.Render("  Some checks need attention"))
			s.WriteString("\n\n")
			s.WriteString(highlightStyle.Render("  Press ENTER to continue anyway"))
		} else {
			s.WriteString(successStyle.Render("  All checks passed!"))
			s.WriteString("\n\n")
			s.WriteString(highlightStyle.Render("  Press ENTER to continue"))
		}
	}

	return i.center(s.String())
}

// checkLine draws one check with its fix hint.
func (i *Installer) checkLine(idx int, check CheckResult) string {
	look, done := checkLook[check.Status]
	if !done {
		icon := "[ ]"
		if idx == i.currentCheck {
			icon = i.spinner.View()
		}
		return fmt.Sprintf("  %s %s%s\n", dimStyle.Render(icon), check.Name, dimStyle.Render(" - Checking..."))
	}
	line := fmt.Sprintf("  %s %s%s\n", look.style.Render(look.icon), check.Name, dimStyle.Render(" - "+check.Message))
	if check.Fix != "" {
		line += dimStyle.Render("      -> "+check.Fix) + "\n"
	}
	return line
}

func (i *Installer) viewPlan() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("  Choose PyTorch Wheels"))
	s.WriteString("\n\n")

	for idx, choice := range i.choices {
		cursor := "  "
		style := unselectedStyle
		if idx == i.selected {
			cursor = "> "
			style = selectedStyle
		}
		s.WriteString(style.Render(fmt.Sprintf("  %s%s", cursor, choice.label)))
		s.WriteString("\n")
	}

	if choice := i.choices[i.selected]; choice.plan != nil {
		s.WriteString("\n")
		s.WriteString(dimStyle.Render("  " + strings.Join(choice.plan.Command(i.env.python), " ")))
		s.WriteString("\n")
		if choice.plan.Reason != "" {
			s.WriteString(warningStyle.Render("  " + choice.plan.Reason))
			s.WriteString("\n")
		}
	}

	s.WriteString("\n")
	s.WriteString(dimStyle.Render("Use ↑/↓ to select, ENTER to confirm"))

	return i.center(s.String())
}

func (i *Installer) viewInstall() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("  Installing PyTorch"))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("  %s Running pip...\n", i.spinner.View()))
	if last := i.tail.Last(); last != "" {
		width := i.width - 8
		if width < 20 {
			width = 60
		}
		s.WriteString(dimStyle.Render("     " + util.Truncate(last, width)))
		s.WriteString("\n")
	}
	s.WriteString("\n")
	s.WriteString(dimStyle.Render("  This may take several minutes  |  Q to cancel"))

	return i.center(s.String())
}

func (i *Installer) viewComplete() string {
	var s strings.Builder

	switch {
	case i.skipped:
		s.WriteString(warningStyle.Render("  PyTorch installation skipped"))
		s.WriteString("\n")
		s.WriteString(dimStyle.Render("  Run it later with: yolokit install-torch"))
	case i.result.Err != nil:
		s.WriteString(errorStyle.Render("  Installation failed"))
		s.WriteString("\n")
		s.WriteString(dimStyle.Render("  " + i.result.Err.Error()))
	default:
		accel := "CPU"
		if i.result.CUDA {
			accel = "CUDA"
		}
		s.WriteString(successStyle.Render(fmt.Sprintf("  torch %s installed (%s)", i.result.Version, accel)))
	}
	s.WriteString("\n\n")

	s.WriteString(renderTip(nextSteps[i.tip], i.tip, len(nextSteps)))
	s.WriteString("\n\n")
	s.WriteString(dimStyle.Render("  ←/→ for more tips  |  ENTER to close"))

	return i.center(s.String())
}

// center pads content down from the top of the screen.
func (i *Installer) center(content string) string {
	if i.width == 0 || i.height == 0 {
		return content
	}

	top := max(0, (i.height-lipgloss.Height(content))/3)
	return strings.Repeat("\n", top) + content
}

func failed(checks []CheckResult) bool {
	for _, check := range checks {
		if check.Status == "fail" {
			return true
		}
	}
	return false
}
