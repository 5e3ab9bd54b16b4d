package coach

import (
	"context"
	"log"
	"sync"

	"github.com/jmerta/cadence-coach/internal/safego"
)

// UIController handles UI events and coordinates the model, the BLE layer
// and the optimiser.
type UIController struct {
	model         *CoachModel
	deviceHandler *DeviceHandler
	optimiser     *Optimiser
	exporter      *SessionExporter
	logger        *log.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

func NewUIController(model *CoachModel, deviceHandler *DeviceHandler, optimiser *Optimiser, exporter *SessionExporter, logger *log.Logger) *UIController {
	if model == nil {
		panic("UIController: model cannot be nil")
	}
	if deviceHandler == nil {
		panic("UIController: deviceHandler cannot be nil")
	}
	if optimiser == nil {
		panic("UIController: optimiser cannot be nil")
	}
	if exporter == nil {
		panic("UIController: exporter cannot be nil")
	}
	if logger == nil {
		panic("UIController: logger cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &UIController{
		model:         model,
		deviceHandler: deviceHandler,
		optimiser:     optimiser,
		exporter:      exporter,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}

	c.wg.Add(1)
	safego.Go(logger, func() { c.listenToAutoConnect() })

	return c
}

func (c *UIController) listenToAutoConnect() {
	defer c.wg.Done()

	ch := make(chan AutoConnectRequest, 1)
	unregister := c.model.ListenToAutoConnect(ch)
	defer unregister()

	for {
		select {
		case <-c.ctx.Done():
			return
		case req, ok := <-ch:
			if !ok {
				return
			}
			c.logger.Printf("Auto-connecting %s from persistence", req.Device.Address)
			c.ScanDeviceSelected(req.Device)
		}
	}
}

// ScanDeviceSelected handles when a strap is selected from the scan list
func (c *UIController) ScanDeviceSelected(uiDeviceModel *UIDeviceModel) {
	err := c.deviceHandler.ConnectStrap(uiDeviceModel.Address)
	if err != nil {
		c.logger.Printf("Connection failed: %v", err)
		return
	}
}

// DisconnectStrap disconnects the currently assigned strap
func (c *UIController) DisconnectStrap() {
	device := c.model.GetConnectedStrap()
	if device == nil {
		c.logger.Printf("No strap connected")
		return
	}

	if err := c.deviceHandler.DisconnectStrap(device.Address); err != nil {
		c.logger.Printf("Disconnect failed: %v", err)
	}
}

// OnEscapeKey handles when the Escape key is pressed
func (c *UIController) OnEscapeKey() {
	c.model.RequestCloseApplication()
}

func (c *UIController) StartDeviceScan() {
	if c.deviceHandler.IsScanning() {
		c.logger.Printf("already scanning")
		return
	}
	c.deviceHandler.StartScan()
}

func (c *UIController) StopDeviceScan() {
	if !c.deviceHandler.IsScanning() {
		c.logger.Printf("already not scanning")
		return
	}
	if err := c.deviceHandler.StopScan(); err != nil {
		c.logger.Printf("error stopping scan: %v", err)
	}
}

func (c *UIController) ToggleDeviceScan() {
	if c.deviceHandler.IsScanning() {
		c.StopDeviceScan()
	} else {
		c.StartDeviceScan()
	}
}

// OnModeChange handles when the user requests a mode change
func (c *UIController) OnModeChange(mode UIMode) {
	if info, ok := GetUIModeInfo(mode); ok {
		c.logger.Printf("Switching to %s mode", info.DisplayName)
	}
	// We want to scan whenever we are in device mgmt mode
	if mode == UIModeDeviceManagement {
		c.StartDeviceScan()
	} else {
		c.StopDeviceScan()
	}
	c.model.SetMode(mode)
}

// --- Session controls ---

// ToggleSession starts the coaching session when idle and stops it when
// active.
func (c *UIController) ToggleSession() {
	if !c.optimiser.IsRecording() && c.model.GetConnectedStrap() == nil {
		c.logger.Printf("No strap connected - connect one in Device Management mode (press 1)")
		return
	}
	c.optimiser.ToggleRecording()
}

// IncreaseSensitivity widens the noise band by one step
func (c *UIController) IncreaseSensitivity() {
	c.optimiser.AdjustSensitivity(SensitivityStep)
}

// DecreaseSensitivity narrows the noise band by one step
func (c *UIController) DecreaseSensitivity() {
	c.optimiser.AdjustSensitivity(-SensitivityStep)
}

// ExportSession writes the current session history to a CSV file
func (c *UIController) ExportSession() {
	state := c.model.GetCoachState()
	if len(state.History) == 0 {
		c.logger.Printf("Nothing to export yet")
		return
	}

	path, err := c.exporter.Export(state)
	if err != nil {
		c.logger.Printf("Export failed: %v", err)
		return
	}
	c.logger.Printf("Session exported to %s", path)
}

// ResetEnergyCounter resets the strap's energy expended counter
func (c *UIController) ResetEnergyCounter() {
	device := c.model.GetConnectedStrap()
	if device == nil {
		c.logger.Printf("No strap connected")
		return
	}
	if err := c.deviceHandler.ResetEnergyExpended(device.Address); err != nil {
		c.logger.Printf("Energy reset failed: %v", err)
	}
}

// Shutdown stops the optimiser, device handler and cleans up resources
func (c *UIController) Shutdown() {
	c.cancel()
	c.wg.Wait()
	c.optimiser.Shutdown()
	c.deviceHandler.Shutdown()
}
