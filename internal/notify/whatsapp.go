package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WhatsApp sends a single template message through the Cloud API.
type WhatsApp struct {
	APIURL   string // e.g. https://graph.facebook.com/v19.0
	PhoneID  string
	Token    string
	Template string
	Language string
	Client   *http.Client
}

type waParam struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type waComponent struct {
	Type       string    `json:"type"`
	Parameters []waParam `json:"parameters"`
}

type waTemplate struct {
	Name       string            `json:"name"`
	Language   map[string]string `json:"language"`
	Components []waComponent     `json:"components"`
}

type waRequest struct {
	MessagingProduct string     `json:"messaging_product"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Template         waTemplate `json:"template"`
}

// PermanentError marks a rejection that retrying will not fix.
type PermanentError struct {
	Status int
	Body   string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("whatsapp rejected message: %d %s", e.Status, e.Body)
}

func (w *WhatsApp) Send(ctx context.Context, m Message) error {
	if m.Recipient == "" {
		return nil
	}
	lang := w.Language
	if lang == "" {
		lang = "en_US"
	}
	body, err := json.Marshal(waRequest{
		MessagingProduct: "whatsapp",
		To:               m.Recipient,
		Type:             "template",
		Template: waTemplate{
			Name:     w.Template,
			Language: map[string]string{"code": lang},
			Components: []waComponent{{
				Type: "body",
				Parameters: []waParam{
					{Type: "text", Text: m.Title},
					{Type: "text", Text: m.Body},
					{Type: "text", Text: "Online Store"},
				},
			}},
		},
	})
	if err != nil {
		return err
	}

	url := strings.TrimRight(w.APIURL, "/") + "/" + w.PhoneID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.Token)
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return &PermanentError{Status: resp.StatusCode, Body: string(msg)}
	}
	return fmt.Errorf("whatsapp: %d %s", resp.StatusCode, msg)
}
