package coach

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const (
	appConfigDirName = ".cadence-coach"
	uiStateFileName  = "ui_state.json"
)

type preferencesData struct {
	PreferredStrapAddress string `json:"preferred_strap_address"`
}

// preferences persists small bits of UI state across runs, currently just
// the last connected strap so the next run can auto-reconnect. Load and
// save failures are logged and otherwise ignored.
type preferences struct {
	mu     sync.Mutex
	path   string
	data   preferencesData
	logger *log.Logger
}

func newPreferences(logger *log.Logger) *preferences {
	p := &preferences{logger: logger}

	home, err := os.UserHomeDir()
	if err != nil {
		logger.Printf("Preferences: cannot resolve home directory, persistence disabled: %v", err)
		return p
	}
	p.path = filepath.Join(home, appConfigDirName, uiStateFileName)
	p.load()
	return p
}

func (p *preferences) load() {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		if !os.IsNotExist(err) {
			p.logger.Printf("Preferences: read %s failed: %v", p.path, err)
		}
		return
	}
	if err := json.Unmarshal(raw, &p.data); err != nil {
		p.logger.Printf("Preferences: parse %s failed, starting fresh: %v", p.path, err)
		p.data = preferencesData{}
	}
}

func (p *preferences) getPreferredStrap() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data.PreferredStrapAddress
}

func (p *preferences) setPreferredStrap(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.data.PreferredStrapAddress == address {
		return
	}
	p.data.PreferredStrapAddress = address
	p.save()
}

// save writes the preferences file. Caller must hold p.mu.
func (p *preferences) save() {
	if p.path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		p.logger.Printf("Preferences: create config dir failed: %v", err)
		return
	}
	raw, err := json.MarshalIndent(p.data, "", "  ")
	if err != nil {
		p.logger.Printf("Preferences: marshal failed: %v", err)
		return
	}
	if err := os.WriteFile(p.path, raw, 0o644); err != nil {
		p.logger.Printf("Preferences: write %s failed: %v", p.path, err)
	}
}
