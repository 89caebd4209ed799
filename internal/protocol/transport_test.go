package protocol

import (
	"bytes"
	"testing"
)

func TestSendThenReadEnvelopeRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStdioTransport(&buf, &buf)

	req := Request{ID: "1", Method: MethodSyntaxTree, Params: map[string]string{"path": "/main.rs"}}
	if err := tr.Send(req); err != nil {
		t.Fatalf("Send: %v", err)
	}

	env, err := tr.ReadEnvelope()
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if env.Kind() != "request" {
		t.Fatalf("expected request, got %s", env.Kind())
	}
	if *env.Method != MethodSyntaxTree {
		t.Fatalf("expected %s, got %s", MethodSyntaxTree, *env.Method)
	}
	if env.ID == nil || *env.ID != "1" {
		t.Fatalf("expected id 1, got %v", env.ID)
	}
}

func TestReadEnvelopeMissingContentLengthErrors(t *testing.T) {
	buf := bytes.NewBufferString("\r\n{}")
	tr := NewStdioTransport(buf, &bytes.Buffer{})
	if _, err := tr.ReadEnvelope(); err == nil {
		t.Fatal("expected an error for missing Content-Length")
	}
}

func TestSendResponseWithError(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStdioTransport(&buf, &buf)
	resp := Response{ID: "7", Error: &ResponseError{Code: ErrRequestCanceled, Message: "canceled"}}
	if err := tr.Send(resp); err != nil {
		t.Fatalf("Send: %v", err)
	}
	env, err := tr.ReadEnvelope()
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if env.Kind() != "response" {
		t.Fatalf("expected response, got %s", env.Kind())
	}
	if env.Error == nil || env.Error.Code != ErrRequestCanceled {
		t.Fatalf("expected ErrRequestCanceled, got %v", env.Error)
	}
}
