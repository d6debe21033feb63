package whatsapp

// WebhookEvent is the top-level structure of a WhatsApp Cloud API webhook.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value carries either inbound messages or delivery statuses.
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	Statuses         []Status  `json:"statuses,omitempty"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// Message is one inbound message. Only text and audio are handled.
type Message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *Text  `json:"text,omitempty"`
	Audio     *Media `json:"audio,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Voice    bool   `json:"voice"`
}

type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}

// SendRequest is the Graph API payload for a text message.
type SendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type,omitempty"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             SendText `json:"text"`
}

type SendText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

// SendResponse is the Graph API answer to a send.
type SendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *SendError `json:"error,omitempty"`
}

// SendError represents an error returned by the Graph API.
type SendError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}
