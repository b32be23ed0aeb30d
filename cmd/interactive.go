package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/seqcast/logger"
	"github.com/adamgarcia4/goLearning/seqcast/node"
	"github.com/adamgarcia4/goLearning/seqcast/transport"
)

var inMemory bool

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Run a whole cluster with a live view",
	Long: `Start the relay and every node of the cluster table in this process and
show, for the selected node, the messages it sent, received and delivered.

Keyboard shortcuts:
  S       - Submit a message from the selected node
  Tab/←/→ - Select another node
  D       - Stop a node (shows selection menu)
  Enter   - Repeat last command
  ↑/↓     - Scroll logs
  Q       - Quit

Examples:
  seqcast interactive
  seqcast interactive --memory
  seqcast interactive --cluster=cluster.yaml`,
	RunE: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
	interactiveCmd.Flags().BoolVar(&inMemory, "memory", false, "Connect the nodes over an in-process network instead of sockets")
}

const columnLines = 10

type model struct {
	manager      *node.Manager
	nodes        []*node.Node
	selected     int // node whose columns are shown
	composing    bool
	input        string
	stopMode     bool
	stopSelected int
	numericInput string // Buffer for multi-digit numeric input in stop mode
	err          error
	logBuffer    *logger.LogBuffer
	logScroll    int // for scrolling logs
	width        int
	height       int
	lastCommand  string // "submit:<text>" or "stop:<index>", repeated by Enter
}

func initialModel(cluster *node.ClusterConfig) (model, error) {
	// Initialize logger for interactive mode (no stdout, only log buffer)
	logBuffer := logger.GetGlobalLogBuffer()
	logger.Init("", false)
	if err := logger.SetLevel(logLevel); err != nil {
		return model{}, err
	}
	if err := logger.AttachBuffer(logBuffer); err != nil {
		return model{}, err
	}

	var opts []node.ManagerOption
	if inMemory {
		opts = append(opts, node.WithSharedTransport(transport.NewMemory()))
	}
	manager, err := node.NewManager(cluster, opts...)
	if err != nil {
		return model{}, err
	}
	if err := manager.StartAll(); err != nil {
		return model{}, err
	}

	return model{
		manager:   manager,
		nodes:     manager.GetNodes(),
		logBuffer: logBuffer,
	}, nil
}

func (m model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

type tickMsg struct{}

type submittedMsg struct {
	err error
}

type shutdownCompleteMsg struct {
	err error
}

// shutdownNodes stops the cluster and sends a message when complete
func shutdownNodes(manager *node.Manager) tea.Cmd {
	return func() tea.Msg {
		return shutdownCompleteMsg{err: manager.StopAll()}
	}
}

func submit(n *node.Node, text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := n.Submit(ctx, text)
		return submittedMsg{err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, shutdownNodes(m.manager)
		}
		if m.composing {
			return m.handleCompose(msg)
		}
		if m.stopMode {
			return m.handleStopMode(msg)
		}

		switch msg.String() {
		case "q", "Q":
			// Stop all nodes gracefully and wait for completion
			return m, shutdownNodes(m.manager)

		case "s", "S":
			m.composing = true
			m.input = ""
			return m, nil

		case "tab", "right", "l":
			if len(m.nodes) > 0 {
				m.selected = (m.selected + 1) % len(m.nodes)
			}
			return m, nil

		case "shift+tab", "left", "h":
			if len(m.nodes) > 0 {
				m.selected = (m.selected - 1 + len(m.nodes)) % len(m.nodes)
			}
			return m, nil

		case "d", "D":
			m.stopMode = true
			m.stopSelected = 0
			m.numericInput = ""
			return m, nil

		case "enter":
			return m.repeatLast()

		case "up", "k":
			// Scroll logs up (show older logs)
			maxScroll := len(m.logBuffer.GetAll()) - 15
			if maxScroll < 0 {
				maxScroll = 0
			}
			if m.logScroll < maxScroll {
				m.logScroll++
			}
			return m, nil

		case "down", "j":
			// Scroll logs down (show newer logs)
			if m.logScroll > 0 {
				m.logScroll--
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.nodes = m.manager.GetNodes()
		return m, tick()

	case submittedMsg:
		m.err = msg.err
		return m, nil

	case shutdownCompleteMsg:
		if msg.err != nil {
			logger.Printf("Error stopping nodes during shutdown: %v", msg.err)
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m model) handleCompose(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.composing = false
		m.input = ""
		return m, nil
	case tea.KeyEnter:
		m.composing = false
		text := m.input
		m.input = ""
		m.lastCommand = "submit:" + text
		return m.submitSelected(text)
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
		return m, nil
	case tea.KeySpace:
		m.input += " "
		return m, nil
	case tea.KeyRunes:
		m.input += string(msg.Runes)
		return m, nil
	}
	return m, nil
}

func (m model) submitSelected(text string) (tea.Model, tea.Cmd) {
	if m.selected >= len(m.nodes) {
		m.err = fmt.Errorf("no node selected")
		return m, nil
	}
	return m, submit(m.nodes[m.selected], text)
}

func (m model) stopAt(index int) model {
	if index < 0 || index >= len(m.nodes) {
		m.err = fmt.Errorf("node %d does not exist (max: %d)", index+1, len(m.nodes))
		return m
	}
	id := m.nodes[index].GetConfig().NodeID
	// Stop node asynchronously to avoid blocking the UI
	go func() {
		if err := m.manager.StopNode(id); err != nil {
			logger.Errorf("Error stopping node %s: %v", id, err)
		}
	}()
	m.lastCommand = fmt.Sprintf("stop:%d", index)
	m.stopMode = false
	m.stopSelected = 0
	m.err = nil
	return m
}

func (m model) repeatLast() (tea.Model, tea.Cmd) {
	switch {
	case strings.HasPrefix(m.lastCommand, "submit:"):
		return m.submitSelected(strings.TrimPrefix(m.lastCommand, "submit:"))
	case strings.HasPrefix(m.lastCommand, "stop:"):
		index, err := strconv.Atoi(strings.TrimPrefix(m.lastCommand, "stop:"))
		if err != nil {
			return m, nil
		}
		return m.stopAt(index), nil
	}
	return m, nil
}

func (m model) handleStopMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.stopMode = false
		m.stopSelected = 0
		m.err = nil
		m.numericInput = ""
		return m, nil

	case "up", "k":
		if m.stopSelected > 0 {
			m.stopSelected--
		}
		return m, nil

	case "down", "j":
		if m.stopSelected < len(m.nodes)-1 {
			m.stopSelected++
		}
		return m, nil

	case "enter", " ":
		// If there's numeric input, process that first
		if m.numericInput != "" {
			input := m.numericInput
			m.numericInput = ""
			num, err := strconv.Atoi(input)
			if err != nil {
				m.err = fmt.Errorf("invalid number: %s", input)
				return m, nil
			}
			return m.stopAt(num - 1), nil
		}
		return m.stopAt(m.stopSelected), nil

	default:
		keyStr := msg.String()
		if len(keyStr) == 1 && keyStr >= "0" && keyStr <= "9" {
			m.numericInput += keyStr
			return m, nil
		}
		m.numericInput = ""
		return m, nil
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(1, 2)
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)
	stoppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Height(columnLines + 1)
	logStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Height(13)
	instructionsStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true).
				PaddingTop(1)
)

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Sequencer Multicast"))
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	s.WriteString(m.viewNodes())
	s.WriteString("\n")
	if m.selected < len(m.nodes) {
		s.WriteString(m.viewColumns(m.nodes[m.selected]))
		s.WriteString("\n")
	}
	s.WriteString(m.viewLogs())
	s.WriteString("\n\n")

	switch {
	case m.composing && m.selected < len(m.nodes):
		s.WriteString(fmt.Sprintf("Message from %s: %s█", m.nodes[m.selected].GetConfig().NodeID, m.input))
		s.WriteString("\n")
		s.WriteString(instructionsStyle.Render("Enter to submit | Esc to cancel"))
	case m.stopMode:
		helpText := fmt.Sprintf("STOP MODE: Use ↑/↓/j/k or type node number (1-%d), Enter to confirm, Esc to cancel", len(m.nodes))
		if m.numericInput != "" {
			helpText = fmt.Sprintf("STOP MODE: Type node number (current: %s) or Enter to confirm, Esc to cancel", m.numericInput)
		}
		s.WriteString(instructionsStyle.Render(helpText))
	default:
		instructionText := "S to submit | Tab/←/→ to select node | D to stop a node"
		if m.lastCommand != "" {
			instructionText += fmt.Sprintf(" | Enter to repeat (%s)", formatCommandPreview(m.lastCommand))
		}
		instructionText += " | ↑/↓/j/k to scroll logs | Q to quit"
		s.WriteString(instructionsStyle.Render(instructionText))
	}

	return s.String()
}

func (m model) viewNodes() string {
	if len(m.nodes) == 0 {
		return "No nodes running.\n"
	}

	var s strings.Builder
	s.WriteString("Nodes:\n\n")
	for i, n := range m.nodes {
		st := n.Status()
		role := ""
		if st.Sequencer {
			role = fmt.Sprintf(" sequencer (assigned %d)", st.Assigned)
		}
		state := "running"
		if !st.Running {
			state = "stopped"
		}
		line := fmt.Sprintf("[%d] %s %s %s | next %d | pending %d%s",
			i+1, st.NodeID, st.Address, state, st.NextExpected, len(st.Pending), role)

		switch {
		case m.stopMode && i == m.stopSelected:
			s.WriteString(errorStyle.Render("  > " + line))
		case i == m.selected:
			s.WriteString(selectedStyle.Render("  * " + line))
		case !st.Running:
			s.WriteString(stoppedStyle.Render("    " + line))
		default:
			s.WriteString("    " + line)
		}
		s.WriteString("\n")
	}
	return s.String()
}

func (m model) viewColumns(n *node.Node) string {
	width := 40
	if m.width > 0 {
		width = (m.width - 8) / len(node.Columns)
	}

	journal := n.Journal()
	boxes := make([]string, 0, len(node.Columns))
	for _, c := range node.Columns {
		entries := journal.Entries(c)
		if len(entries) > columnLines {
			entries = entries[len(entries)-columnLines:]
		}
		lines := []string{strings.ToUpper(string(c))}
		for _, e := range entries {
			lines = append(lines, e.Format(c))
		}
		boxes = append(boxes, columnStyle.Width(width).Render(strings.Join(lines, "\n")))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func (m model) viewLogs() string {
	allEntries := m.logBuffer.GetAll()
	totalCount := len(allEntries)
	logCount := 15

	var logLines []string
	if totalCount == 0 {
		logLines = []string{"     | (no logs yet)"}
	} else {
		end := totalCount - m.logScroll
		if end < 0 {
			end = 0
		}
		start := end - logCount
		if start < 0 {
			start = 0
		}
		// newest first; line 0 is the most recent entry
		for i := end - 1; i >= start; i-- {
			logLines = append(logLines, fmt.Sprintf("%4d | %s", totalCount-1-i, logger.FormatLogEntry(allEntries[i])))
		}
	}

	boxWidth := 100
	if m.width > 0 {
		boxWidth = m.width - 4 // Leave some margin
	}
	return logStyle.Width(boxWidth).Render("Logs:\n" + strings.Join(logLines, "\n"))
}

// formatCommandPreview formats the last command for display
func formatCommandPreview(lastCommand string) string {
	switch {
	case strings.HasPrefix(lastCommand, "stop:"):
		if index, err := strconv.Atoi(strings.TrimPrefix(lastCommand, "stop:")); err == nil {
			return fmt.Sprintf("D → %d", index+1)
		}
		return "D → [node]"
	case strings.HasPrefix(lastCommand, "submit:"):
		text := strings.TrimPrefix(lastCommand, "submit:")
		if r := []rune(text); len(r) > 20 {
			text = string(r[:20]) + "…"
		}
		return fmt.Sprintf("S %q", text)
	}
	return lastCommand
}

func runInteractive(cmd *cobra.Command, args []string) error {
	cluster, err := loadCluster()
	if err != nil {
		return err
	}
	m, err := initialModel(cluster)
	if err != nil {
		return err
	}
	closeLog, err := attachLogFile()
	if err != nil {
		_ = m.manager.StopAll()
		return err
	}
	defer closeLog()

	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		_ = m.manager.StopAll()
		return fmt.Errorf("error running interactive mode: %w", err)
	}
	return nil
}
