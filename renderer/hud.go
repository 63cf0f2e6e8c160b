package renderer

import rl "github.com/gen2brain/raylib-go/raylib"

const (
	hudFontSize   = 18
	hudLineHeight = 22
	hudMargin     = 10
	messageTTL    = 3.0 // seconds
)

// HUD draws status lines and a transient message in screen space.
type HUD struct {
	message      string
	isError      bool
	messageUntil float64
}

// NewHUD creates an empty HUD.
func NewHUD() *HUD {
	return &HUD{}
}

// Notify shows msg for a few seconds starting at now (seconds).
func (h *HUD) Notify(msg string, isError bool, now float64) {
	h.message = msg
	h.isError = isError
	h.messageUntil = now + messageTTL
}

// Message returns the message visible at now, if any.
func (h *HUD) Message(now float64) (string, bool) {
	if h.message == "" || now >= h.messageUntil {
		return "", false
	}
	return h.message, true
}

// Draw renders lines top-left and the active message below them.
// Must be called outside 3D mode.
func (h *HUD) Draw(lines []string, now float64) {
	y := int32(hudMargin)
	for _, line := range lines {
		rl.DrawText(line, hudMargin, y, hudFontSize, rl.RayWhite)
		y += hudLineHeight
	}
	if msg, ok := h.Message(now); ok {
		color := rl.Gold
		if h.isError {
			color = rl.Red
		}
		rl.DrawText(msg, hudMargin, y+hudLineHeight/2, hudFontSize, color)
	}
	rl.DrawFPS(int32(rl.GetScreenWidth())-90, hudMargin)
}
