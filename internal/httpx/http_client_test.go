package httpx

import (
	"testing"
	"time"
)

func TestExternalTimeout(t *testing.T) {
	if got := ExternalTimeout(0); got != DefaultExternalTimeout {
		t.Fatalf("ExternalTimeout(0) = %s, want %s", got, DefaultExternalTimeout)
	}
	if got := ExternalTimeout(-3); got != DefaultExternalTimeout {
		t.Fatalf("ExternalTimeout(-3) = %s, want %s", got, DefaultExternalTimeout)
	}
	if got := ExternalTimeout(120); got != 120*time.Second {
		t.Fatalf("ExternalTimeout(120) = %s, want %s", got, 120*time.Second)
	}
}

func TestNewExternalClient(t *testing.T) {
	client := NewExternalClient(45)
	if client == nil {
		t.Fatal("client must not be nil")
	}
	if client.Timeout != 45*time.Second {
		t.Fatalf("client timeout = %s, want %s", client.Timeout, 45*time.Second)
	}
	if NewExternalClient(45) == client {
		t.Fatal("each call must return its own client")
	}
}
