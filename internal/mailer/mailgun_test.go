package mailer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestMailgunSend(t *testing.T) {
	var gotPath string
	var gotForm map[string]string
	var gotUser, gotPass string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		_, _ = w.Write([]byte(`{"id":"<mg-456@mg.acme.test>","message":"Queued. Thank you."}`))
	}))
	defer srv.Close()

	m := newMailgun("mg.acme.test", "key-abc", testHTTPClient(), zap.NewNop())
	m.BaseURL = srv.URL

	replyTo := "replies@acme.test"
	ref, err := m.Send(context.Background(), &Message{
		From:    "Acme <no-reply@acme.test>",
		To:      "a@b.com",
		Subject: "Hi",
		Text:    "hello",
		ReplyTo: &replyTo,
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if ref == nil || *ref != "<mg-456@mg.acme.test>" {
		t.Fatalf("expected provider ref, got %v", ref)
	}
	if gotPath != "/v3/mg.acme.test/messages" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if gotUser != "api" || gotPass != "key-abc" {
		t.Errorf("basic auth = %q:%q, want api:key-abc", gotUser, gotPass)
	}
	if gotForm["from"] != "Acme <no-reply@acme.test>" || gotForm["to"] != "a@b.com" {
		t.Errorf("addressing not passed through: %v", gotForm)
	}
	if gotForm["subject"] != "Hi" || gotForm["text"] != "hello" {
		t.Errorf("content not passed through: %v", gotForm)
	}
	if gotForm["h:Reply-To"] != replyTo {
		t.Errorf("reply-to not passed through: %v", gotForm)
	}
	if _, ok := gotForm["html"]; ok {
		t.Error("html field should be absent for text-only message")
	}
}

func TestMailgunSendNonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("Forbidden"))
	}))
	defer srv.Close()

	m := newMailgun("mg.acme.test", "bad-key", testHTTPClient(), zap.NewNop())
	m.BaseURL = srv.URL

	_, err := m.Send(context.Background(), &Message{To: "a@b.com", Subject: "s", Text: "t"})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "Forbidden") {
		t.Errorf("error should carry status and body: %v", err)
	}
}
