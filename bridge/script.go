package bridge

import (
	_ "embed"
	"encoding/json"

	"github.com/hazyhaar/vitrine/message"
)

//go:embed bridge.js
var bridgeJS string

// ScriptConfig parameterises bridge.js for one tab.
type ScriptConfig struct {
	ControllerOrigin string `json:"controllerOrigin"`
	ItemAttr         string `json:"itemAttr,omitempty"`
	SelectedClass    string `json:"selectedClass,omitempty"`
	ModeClass        string `json:"modeClass,omitempty"`
	// Binding is the name of the CDP Runtime binding the script reports
	// through. When absent the script falls back to window.parent.postMessage.
	Binding  string `json:"binding,omitempty"`
	MaxFrame int    `json:"maxFrame,omitempty"`
}

// Script returns bridge.js preceded by its configuration, ready to be
// installed with Page.addScriptToEvaluateOnNewDocument.
func Script(cfg ScriptConfig) string {
	if cfg.MaxFrame == 0 {
		cfg.MaxFrame = message.MaxFrameSize
	}
	raw, _ := json.Marshal(cfg)
	return "window.__vitrine_config = " + string(raw) + ";\n" + bridgeJS
}
