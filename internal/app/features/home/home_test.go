package home

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewHandler(t *testing.T) {
	h := NewHandler(zap.NewNop())
	if h == nil {
		t.Fatal("NewHandler() returned nil")
	}
}

func TestRoutes(t *testing.T) {
	h := NewHandler(zap.NewNop())
	router := Routes(h)

	if router == nil {
		t.Fatal("Routes() returned nil")
	}
}
