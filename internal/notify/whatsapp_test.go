package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWhatsAppSend(t *testing.T) {
	var got waRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/123/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wa := &WhatsApp{APIURL: srv.URL + "/", PhoneID: "123", Token: "tok", Template: "order_update", Client: srv.Client()}
	err := wa.Send(context.Background(), Message{Recipient: "+250788000000", Title: "Order Update", Body: "paid"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.To != "+250788000000" || got.Template.Name != "order_update" || got.Template.Language["code"] != "en_US" {
		t.Errorf("unexpected request %+v", got)
	}
	if params := got.Template.Components[0].Parameters; len(params) != 3 || params[1].Text != "paid" {
		t.Errorf("unexpected parameters %+v", params)
	}
}

func TestWhatsAppErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{"bad request", http.StatusBadRequest, true},
		{"unauthorized", http.StatusUnauthorized, true},
		{"rate limited", http.StatusTooManyRequests, false},
		{"server error", http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			wa := &WhatsApp{APIURL: srv.URL, PhoneID: "1", Client: srv.Client()}
			err := wa.Send(context.Background(), Message{Recipient: "x"})
			if err == nil {
				t.Fatal("Expected an error")
			}
			var pe *PermanentError
			if errors.As(err, &pe) != tt.permanent {
				t.Errorf("permanent: expected %v, got %v (%v)", tt.permanent, !tt.permanent, err)
			}
		})
	}
}

func TestWhatsAppSkipsEmptyRecipient(t *testing.T) {
	wa := &WhatsApp{APIURL: "http://127.0.0.1:1", PhoneID: "1"}
	if err := wa.Send(context.Background(), Message{}); err != nil {
		t.Errorf("Expected no-op, got %v", err)
	}
}
