package rodweb

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CSS selectors for the WhatsApp Web interface. These track the deployed
// frontend and are the usual breakage point after WhatsApp updates.
const (
	// selMainPanel is the left-hand chat list; its presence means the
	// session is authenticated and the app finished loading.
	selMainPanel = "#pane-side"
	// selQRCanvas renders the login QR code.
	selQRCanvas = `canvas[aria-label='Scan me!']`

	selSearchInput = `div[data-testid='chat-list-search']`
	selChatTitle   = `header span[data-testid='conversation-info-header-chat-title']`

	selTextBox    = `#main div[role='textbox'][contenteditable='true']`
	selSendButton = `button[aria-label="Enviar"]`

	selClipButton     = `span[data-testid='clip']`
	selSendAttachment = `span[data-testid='send']`
	// Hidden file inputs behind the clip menu, keyed by their accept attribute.
	selImageInput    = `input[accept='image/*,video/mp4,video/3gpp,video/quicktime']`
	selDocumentInput = `input[accept='*']`
)

func searchResultByTitle(title string) string {
	return fmt.Sprintf("span[title=%q]", title)
}

// mediaExts are the types WhatsApp accepts through the image/video input;
// everything else goes through the generic document input.
var mediaExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".mp4": true,
}

func attachInputFor(path string) string {
	if mediaExts[strings.ToLower(filepath.Ext(path))] {
		return selImageInput
	}
	return selDocumentInput
}
