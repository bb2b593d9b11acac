// Package tui is the interactive device browser behind the list command.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"shaderviz/internal/audio"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))
)

var (
	quitKeys  = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	upKeys    = key.NewBinding(key.WithKeys("up", "k"))
	downKeys  = key.NewBinding(key.WithKeys("down", "j"))
	enterKeys = key.NewBinding(key.WithKeys("enter"))
	backKeys  = key.NewBinding(key.WithKeys("esc"))
)

// SampleRates offered on the configuration screen.
var SampleRates = []float64{44100, 48000, 88200, 96000}

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// Selection is the capture device and rate chosen in the browser.
type Selection struct {
	DeviceID   int
	Name       string
	SampleRate float64
}

// DeviceListModel lists input devices and lets the user pick one for
// capture.
type DeviceListModel struct {
	fetch         func() ([]audio.Device, error)
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	sampleRateIndex int
	selection       *Selection
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDeviceListModel creates a model that loads devices with fetch.
func NewDeviceListModel(fetch func() ([]audio.Device, error)) DeviceListModel {
	return DeviceListModel{fetch: fetch, activeScreen: ListScreen}
}

// Init loads the device list.
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{inputs(devices)}
	}
}

// inputs keeps devices that can capture.
func inputs(devices []audio.Device) []audio.Device {
	var out []audio.Device
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			out = append(out, d)
		}
	}
	return out
}

// Selection returns the confirmed choice, or nil if the user quit.
func (m DeviceListModel) Selection() *Selection { return m.selection }

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		m.devices = msg.devices
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) || m.err != nil {
			return m, tea.Quit
		}
		switch m.activeScreen {
		case ListScreen:
			if done := m.updateList(msg); done {
				return m, nil
			}
		case ConfigScreen:
			if done := m.updateConfig(msg); done {
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// updateList handles a key on the list screen and reports whether the
// key was consumed.
func (m *DeviceListModel) updateList(msg tea.KeyMsg) bool {
	switch {
	case key.Matches(msg, upKeys):
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}
	case key.Matches(msg, downKeys):
		if m.selectedIndex < len(m.devices)-1 {
			m.selectedIndex++
		}
	case key.Matches(msg, enterKeys):
		if len(m.devices) == 0 {
			return true
		}
		m.activeScreen = ConfigScreen
		m.sampleRateIndex = 0
		for i, rate := range SampleRates {
			if rate == m.devices[m.selectedIndex].DefaultSampleRate {
				m.sampleRateIndex = i
				break
			}
		}
	default:
		return false
	}
	m.refresh()
	return true
}

// updateConfig handles a key on the configuration screen and reports
// whether the selection was confirmed.
func (m *DeviceListModel) updateConfig(msg tea.KeyMsg) bool {
	switch {
	case key.Matches(msg, backKeys):
		m.activeScreen = ListScreen
	case key.Matches(msg, upKeys):
		if m.sampleRateIndex > 0 {
			m.sampleRateIndex--
		}
	case key.Matches(msg, downKeys):
		if m.sampleRateIndex < len(SampleRates)-1 {
			m.sampleRateIndex++
		}
	case key.Matches(msg, enterKeys):
		d := m.devices[m.selectedIndex]
		m.selection = &Selection{DeviceID: d.ID, Name: d.Name, SampleRate: SampleRates[m.sampleRateIndex]}
		return true
	}
	m.refresh()
	return false
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen {
		m.viewport.SetContent(m.renderDeviceConfig())
		return
	}
	m.viewport.SetContent(m.renderDevices())
}

// View renders the UI
func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress any key to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Capture Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Capture Settings")
		help = infoStyle.Render("↑/↓: Sample rate • Enter: Use • Esc: Back • q: Quit")
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No input devices found."
	}
	var sb strings.Builder
	for i, d := range m.devices {
		info := fmt.Sprintf("[%d] %s (%s)\n", d.ID, d.Name, d.Kind())
		info += fmt.Sprintf("    Input channels: %d, Default sample rate: %.0f Hz\n",
			d.MaxInputChannels, d.DefaultSampleRate)
		if d.HostAPI != "" {
			info += dimStyle.Render("    "+d.HostAPI) + "\n"
		}
		if i == m.selectedIndex {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	d := m.devices[m.selectedIndex]
	fmt.Fprintf(&sb, "Device: %s\n\nSample Rate:\n", d.Name)
	for i, rate := range SampleRates {
		marker := " "
		if i == m.sampleRateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz\n", marker, rate)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// StartDeviceListUI runs the browser on the terminal and returns the
// confirmed selection, or nil when the user quit without choosing.
func StartDeviceListUI() (*Selection, error) {
	p := tea.NewProgram(NewDeviceListModel(audio.HostDevices), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	return final.(DeviceListModel).Selection(), nil
}
