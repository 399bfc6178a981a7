package telegram

// Telegram API entity structs

type Update struct {
	UpdateID int      `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int       `json:"message_id"`
	Text      string    `json:"text"`
	Chat      Chat      `json:"chat"`
	From      *User     `json:"from"`
	Date      int64     `json:"date"`
	Photo     []Photo   `json:"photo,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	Document  *Document `json:"document,omitempty"`
}

// FileID returns the file to OCR: the largest photo size or the document.
func (m *Message) FileID() (string, bool) {
	if len(m.Photo) > 0 {
		return m.Photo[len(m.Photo)-1].FileID, true
	}
	if m.Document != nil {
		return m.Document.FileID, true
	}
	return "", false
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type User struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username"`
}

type Photo struct {
	FileID   string `json:"file_id"`
	FileSize int    `json:"file_size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type Document struct {
	FileName string `json:"file_name"`
	FileID   string `json:"file_id"`
	MimeType string `json:"mime_type"`
	FileSize int    `json:"file_size"`
}

type GetFileResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		FilePath string `json:"file_path"`
	} `json:"result"`
}

type SendMessageRequest struct {
	ChatID           int64  `json:"chat_id"`
	Text             string `json:"text"`
	ReplyToMessageID int    `json:"reply_to_message_id,omitempty"`
}
