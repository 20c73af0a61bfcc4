package ingest

import "strings"

// ClipboardItem is one representation offered by a paste event.
type ClipboardItem struct {
	MIMEType string
	Data     []byte
}

// PasteEvent is a clipboard paste delivered to the page.
type PasteEvent struct {
	Items []ClipboardItem
	// TextInputFocused is true when a text field owns the paste.
	TextInputFocused bool
}

// DropEvent is a drag-and-drop delivered onto an upload area.
type DropEvent struct {
	Files []File
}

// AcceptClipboardImage accepts the first image in a paste. Pastes into text fields and
// pastes without image data are ignored: accepted is false and err is nil.
func (in *Ingestor) AcceptClipboardImage(ev PasteEvent) (img *Image, accepted bool, err error) {
	if ev.TextInputFocused {
		return nil, false, nil
	}
	for _, item := range ev.Items {
		if !strings.HasPrefix(item.MIMEType, "image/") || len(item.Data) == 0 {
			continue
		}
		img, err := in.AcceptFile(File{Name: "pasted-image", ContentType: item.MIMEType, Data: item.Data})
		return img, err == nil, err
	}
	return nil, false, nil
}

// AcceptDroppedFile accepts the first dropped file.
func (in *Ingestor) AcceptDroppedFile(ev DropEvent) (*Image, error) {
	if len(ev.Files) == 0 {
		return nil, &ValidationError{Reason: ReasonMissing, Detail: "nothing was dropped"}
	}
	return in.AcceptFile(ev.Files[0])
}
