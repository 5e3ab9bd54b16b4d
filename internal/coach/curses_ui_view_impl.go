package coach

import (
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Page names for tview.Pages
const (
	pageDeviceManagement = "device_management"
	pageCoachDashboard   = "coach_dashboard"
)

// CursesUIViewImpl implements UIViewImpl using tview (curses-based terminal UI)
type CursesUIViewImpl struct {
	logger      *log.Logger
	app         *tview.Application
	model       *CoachModel
	currentMode UIMode

	// Root container that holds all pages
	pages *tview.Pages

	// Shared components (visible in all modes)
	logView  *tview.TextView
	mainFlex *tview.Flex // Main layout: mode content on left, logs on right

	// Device Management mode components
	deviceMgmtFlex       *tview.Flex
	scanDeviceList       *tview.List
	connectedStrapText   *tview.TextView
	deviceMgmtTabWidgets []*tview.Box

	// Coach Dashboard mode components
	coachDashboardFlex       *tview.Flex
	coachDashboardTabWidgets []*tview.Box
	advicePanel              *tview.TextView
	chartPanel               *tview.TextView
	metricsPanel             *tview.TextView
}

func NewCursesUIView(logger *log.Logger, app *tview.Application, model *CoachModel) *CursesUIViewImpl {
	return &CursesUIViewImpl{
		logger:      logger,
		app:         app,
		model:       model,
		currentMode: UIModeDeviceManagement,
	}
}

// Initialize sets up the tview widgets
func (ui *CursesUIViewImpl) Initialize(controller *UIController) {
	// Create shared log view
	// Note: Don't use SetChangedFunc with app.Draw() - it can cause hangs during shutdown
	// when the app has been stopped but log messages are still being written.
	// The BaseUIView's event listeners already call Draw() after updating content.
	ui.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	ui.logView.SetBorder(true).SetTitle(" Logs ")

	// Create pages container for mode switching
	ui.pages = tview.NewPages()

	// Initialize each mode
	ui.initDeviceManagementMode(controller)
	ui.initCoachDashboardMode(controller)

	// Add pages
	ui.pages.AddPage(pageDeviceManagement, ui.deviceMgmtFlex, true, true)
	ui.pages.AddPage(pageCoachDashboard, ui.coachDashboardFlex, true, false)

	// Create main layout: pages on left, logs on right
	ui.mainFlex = tview.NewFlex().
		AddItem(ui.pages, 0, 1, true).
		AddItem(ui.logView, 0, 1, false)

	// Set initial focus
	ui.setFocusForCurrentMode()
}

// initDeviceManagementMode sets up the Device Management mode UI
func (ui *CursesUIViewImpl) initDeviceManagementMode(controller *UIController) {
	// Create instructions box at the top
	instructionsText := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	instructionsText.SetText("[yellow]S[white] Toggle Scan  |  [yellow]Enter[white] Connect  |  [yellow]D[white] Disconnect\n[yellow]1[white] Devices  |  [yellow]2[white] Dashboard")

	// Strap scan list
	ui.scanDeviceList = tview.NewList().
		ShowSecondaryText(false).
		SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
			ui.logger.Printf("UI: Strap selected: index=%d, text=%s", index, mainText)
			devices := ui.model.GetScanDevices()
			if index >= len(devices) {
				ui.logger.Printf("UI: Index %d out of range (have %d straps)", index, len(devices))
				return
			}
			selected := devices[index]
			ui.logger.Printf("UI: Connecting to %s (%s)", selected.Name, selected.Address)
			controller.ScanDeviceSelected(selected)
		})
	ui.scanDeviceList.SetBorder(true).SetTitle(" Heart Rate Straps ")

	// Connected strap text
	ui.connectedStrapText = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.connectedStrapText.SetBorder(true).SetTitle(" Connected ")
	ui.connectedStrapText.SetText(" [gray]None[white]")

	ui.deviceMgmtTabWidgets = append(ui.deviceMgmtTabWidgets, ui.scanDeviceList.Box)

	strapColumnFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.scanDeviceList, 0, 4, true).
		AddItem(ui.connectedStrapText, 3, 0, false)

	// Create device management layout: instructions at top, strap column below
	ui.deviceMgmtFlex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(instructionsText, 2, 0, false).
		AddItem(strapColumnFlex, 0, 1, true)
}

// initCoachDashboardMode sets up the Coach Dashboard mode UI
func (ui *CursesUIViewImpl) initCoachDashboardMode(controller *UIController) {
	// Create advice panel for the guidance banner
	ui.advicePanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.advicePanel.SetBorder(true).SetTitle(" Coaching ")
	ui.updateAdviceDisplay(CoachState{Advice: AdviceIdle, Sensitivity: DefaultSensitivity})

	// Create chart panel for the HR history
	ui.chartPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.chartPanel.SetBorder(true).SetTitle(" Heart Rate (last 60s) ")
	ui.updateChartDisplay(nil)

	// Create metrics panel for secondary strap data
	ui.metricsPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.metricsPanel.SetBorder(true).SetTitle(" Strap ")
	ui.updateMetricsDisplay(nil)

	ui.coachDashboardTabWidgets = append(ui.coachDashboardTabWidgets, ui.advicePanel.Box)
	ui.coachDashboardTabWidgets = append(ui.coachDashboardTabWidgets, ui.chartPanel.Box)
	ui.coachDashboardTabWidgets = append(ui.coachDashboardTabWidgets, ui.metricsPanel.Box)

	// Create left column: advice + chart stacked vertically
	leftColumn := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.advicePanel, 0, 1, true).
		AddItem(ui.chartPanel, 0, 1, false)

	// Create coach dashboard layout: left column + strap panel side by side
	ui.coachDashboardFlex = tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(leftColumn, 0, 2, true).
		AddItem(ui.metricsPanel, 0, 1, false)
}

// SetMode switches the UI to the specified mode
func (ui *CursesUIViewImpl) SetMode(mode UIMode) {
	if ui.currentMode == mode {
		return
	}

	ui.currentMode = mode

	switch mode {
	case UIModeDeviceManagement:
		ui.pages.SwitchToPage(pageDeviceManagement)
	case UIModeCoachDashboard:
		ui.pages.SwitchToPage(pageCoachDashboard)
	}

	ui.setFocusForCurrentMode()
	ui.app.Draw()
}

// GetCurrentMode returns the currently active UI mode
func (ui *CursesUIViewImpl) GetCurrentMode() UIMode {
	return ui.currentMode
}

// setFocusForCurrentMode sets focus to the first widget in the current mode
func (ui *CursesUIViewImpl) setFocusForCurrentMode() {
	var widgets []*tview.Box
	switch ui.currentMode {
	case UIModeDeviceManagement:
		widgets = ui.deviceMgmtTabWidgets
	case UIModeCoachDashboard:
		widgets = ui.coachDashboardTabWidgets
	}

	if len(widgets) > 0 {
		ui.app.SetFocus(widgets[0])
	}
}

// getTabWidgetsForCurrentMode returns the tab widgets for the current mode
func (ui *CursesUIViewImpl) getTabWidgetsForCurrentMode() []*tview.Box {
	switch ui.currentMode {
	case UIModeDeviceManagement:
		return ui.deviceMgmtTabWidgets
	case UIModeCoachDashboard:
		return ui.coachDashboardTabWidgets
	default:
		return nil
	}
}

// SetupKeyboardHandlers sets up keyboard event handlers
func (ui *CursesUIViewImpl) SetupKeyboardHandlers(controller *UIController) {
	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// Number keys for mode switching
		if event.Key() == tcell.KeyRune {
			if mode, ok := GetUIModeByKey(event.Rune()); ok {
				// Delegate to controller - it will update the model, which will notify us
				controller.OnModeChange(mode)
				return nil
			}
		}

		// Tab to switch focus between widgets in current mode
		if event.Key() == tcell.KeyTab {
			widgets := ui.getTabWidgetsForCurrentMode()
			widgetCount := len(widgets)
			if widgetCount > 0 {
				for i := 0; i < widgetCount+1; i++ {
					idx := i % widgetCount
					if widgets[idx].HasFocus() {
						nextIdx := (idx + 1) % widgetCount
						ui.app.SetFocus(widgets[nextIdx])
						break
					}
				}
			}
			return nil
		}

		// Escape to quit
		if event.Key() == tcell.KeyEscape {
			controller.OnEscapeKey()
			return nil
		}

		// Mode-specific key handlers
		switch ui.currentMode {
		case UIModeDeviceManagement:
			// 's' key to toggle scanning (only in device management mode)
			if event.Key() == tcell.KeyRune && event.Rune() == 's' {
				controller.ToggleDeviceScan()
				return nil
			}
			// 'd' key to disconnect the strap
			if event.Key() == tcell.KeyRune && event.Rune() == 'd' {
				controller.DisconnectStrap()
				return nil
			}
		case UIModeCoachDashboard:
			// Space to start/stop the coaching session
			if event.Key() == tcell.KeyRune && event.Rune() == ' ' {
				controller.ToggleSession()
				return nil
			}
			// '+' or '=' or Up arrow to widen the noise band
			if event.Key() == tcell.KeyRune && (event.Rune() == '+' || event.Rune() == '=') {
				controller.IncreaseSensitivity()
				return nil
			}
			if event.Key() == tcell.KeyUp {
				controller.IncreaseSensitivity()
				return nil
			}
			// '-' or Down arrow to narrow it
			if event.Key() == tcell.KeyRune && event.Rune() == '-' {
				controller.DecreaseSensitivity()
				return nil
			}
			if event.Key() == tcell.KeyDown {
				controller.DecreaseSensitivity()
				return nil
			}
			// 'e' to export the session history
			if event.Key() == tcell.KeyRune && event.Rune() == 'e' {
				controller.ExportSession()
				return nil
			}
			// 'r' to reset the strap's energy counter
			if event.Key() == tcell.KeyRune && event.Rune() == 'r' {
				controller.ResetEnergyCounter()
				return nil
			}
		}

		return event
	})
}

// GetLogViewHeight returns the visible height of the log view
func (ui *CursesUIViewImpl) GetLogViewHeight() int {
	_, _, _, height := ui.logView.GetInnerRect()
	return height
}

// ClearLogView clears the log view
func (ui *CursesUIViewImpl) ClearLogView() {
	ui.logView.Clear()
}

// WriteLogLine writes a line to the log view
func (ui *CursesUIViewImpl) WriteLogLine(line string) error {
	_, err := fmt.Fprint(ui.logView, line)
	return err
}

// SetScanDeviceList updates the strap scan list
func (ui *CursesUIViewImpl) SetScanDeviceList(devices []string) {
	currentSelectionIndex := ui.scanDeviceList.GetCurrentItem()

	var currentSelectionText *string
	if currentSelectionIndex < ui.scanDeviceList.GetItemCount() {
		main, _ := ui.scanDeviceList.GetItemText(currentSelectionIndex)
		currentSelectionText = &main
	}

	ui.scanDeviceList.Clear()

	selectedIdx := -1
	for i, dev := range devices {
		if currentSelectionText != nil && *currentSelectionText == dev {
			selectedIdx = i
		}
		ui.scanDeviceList.AddItem(dev, "", 0, nil)
	}
	if selectedIdx > -1 {
		ui.scanDeviceList.SetCurrentItem(selectedIdx)
	}
}

// SetConnectedStrap updates the connected strap display
func (ui *CursesUIViewImpl) SetConnectedStrap(device *UIDeviceModel) {
	if device != nil {
		ui.connectedStrapText.SetText(fmt.Sprintf(" [green]*[white] %s", device.Name))
	} else {
		ui.connectedStrapText.SetText(" [gray]None[white]")
	}
}

// Draw refreshes/redraws the UI
func (ui *CursesUIViewImpl) Draw() error {
	ui.app.Draw()
	return nil
}

// Run starts the UI and blocks until it exits
func (ui *CursesUIViewImpl) Run() error {
	// SetRoot must be called before setting focus, otherwise focus may be reset
	ui.app.SetRoot(ui.mainFlex, true)
	ui.setFocusForCurrentMode()
	return ui.app.Run()
}

// Stop stops the UI framework
func (ui *CursesUIViewImpl) Stop() {
	ui.app.Stop()
}

// UpdateLatestData updates the strap metrics display
func (ui *CursesUIViewImpl) UpdateLatestData(data MetricData) {
	ui.updateMetricsDisplay(data)
}

// UpdateCoachState updates the advice banner and the HR chart
func (ui *CursesUIViewImpl) UpdateCoachState(state CoachState) {
	ui.updateAdviceDisplay(state)
	ui.updateChartDisplay(state.History)
}

// statusColorTag maps a status to a tview color tag
func statusColorTag(status StatusColor) string {
	switch status {
	case StatusPositive:
		return "green"
	case StatusAttention:
		return "yellow"
	default:
		return "white"
	}
}

// updateAdviceDisplay formats and displays the session state
func (ui *CursesUIViewImpl) updateAdviceDisplay(state CoachState) {
	if ui.advicePanel == nil {
		return
	}

	color := statusColorTag(state.Advice.Status())

	text := "\n"
	text += fmt.Sprintf("  [%s]%s[white]\n\n", color, state.Advice.Text())

	if state.Recording {
		text += "  [green]*[white] Session active\n\n"
	} else {
		text += "  [gray]Session stopped[white]\n\n"
	}

	if state.CurrentHR > 0 {
		text += fmt.Sprintf("  [red]HR:[white]          [yellow]%.0f[white] bpm\n", state.CurrentHR)
	} else {
		text += "  [red]HR:[white]          [gray]--[white]\n"
	}
	text += fmt.Sprintf("  [gray]Sensitivity:[white] [yellow]%.0f[white] bpm\n", state.Sensitivity)

	if state.TestInProgress {
		text += fmt.Sprintf("  [gray]Testing:[white]     rhythm %s\n", state.TestDirection)
	}
	if state.PlateauActive {
		text += fmt.Sprintf("  [gray]Plateau at:[white]  %.0f bpm\n", state.PlateauHR)
	}

	text += "\n  [gray]Controls:[white]\n"
	text += "  [yellow]Space[white] Start/Stop  |  [yellow]+[white]/[yellow]-[white] Sensitivity\n"
	text += "  [yellow]E[white] Export CSV  |  [yellow]R[white] Reset energy\n"

	ui.advicePanel.SetText(text)
}

// chart rendering levels, lowest to highest
var chartLevels = []rune{' ', '.', ':', '-', '=', '+', '*', '#'}

// updateChartDisplay renders the HR history as a one-line character chart
// scaled between the window's min and max.
func (ui *CursesUIViewImpl) updateChartDisplay(history []float64) {
	if ui.chartPanel == nil {
		return
	}

	if len(history) == 0 {
		ui.chartPanel.SetText("\n  [gray]No samples yet. Start a session to record.[white]")
		return
	}

	lo, hi := history[0], history[0]
	for _, v := range history {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	var sb strings.Builder
	for _, v := range history {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(chartLevels)-1))
		}
		sb.WriteRune(chartLevels[idx])
	}

	text := "\n"
	text += fmt.Sprintf("  [gray]max %.0f[white]\n", hi)
	text += fmt.Sprintf("  [yellow]%s[white]\n", sb.String())
	text += fmt.Sprintf("  [gray]min %.0f  (%d samples)[white]\n", lo, len(history))

	ui.chartPanel.SetText(text)
}

// updateMetricsDisplay formats and displays the secondary strap data
func (ui *CursesUIViewImpl) updateMetricsDisplay(data MetricData) {
	if ui.metricsPanel == nil {
		return
	}

	var text string

	if len(data) == 0 {
		text = "\n\n  [yellow]Coach Dashboard[white]\n\n  Connect a strap in Device Management mode (press 1)\n  to see live data here."
	} else {
		text = "\n"

		for _, metricID := range []MetricID{MetricHeartRate, MetricRRInterval, MetricEnergyExpended, MetricBatteryLevel} {
			value, ok := data[metricID]
			if !ok {
				continue
			}
			info := AllMetrics[metricID]
			text += fmt.Sprintf("  [gray]%-14s[white] [yellow]"+info.FormatStr+"[white] %s\n\n",
				info.DisplayName+":", value, info.Unit)
		}

		if text == "\n" {
			text = "\n\n  [gray]Waiting for data...[white]"
		}
	}

	ui.metricsPanel.SetText(text)
}
