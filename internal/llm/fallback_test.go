package llm

import (
	"context"
	"errors"
	"testing"
)

type stubClient struct {
	resp  Response
	err   error
	calls int
	model string
}

func (s *stubClient) Complete(_ context.Context, req Request) (Response, error) {
	s.calls++
	s.model = req.Model
	return s.resp, s.err
}

func TestFallbackClient(t *testing.T) {
	tests := []struct {
		name          string
		primary       *stubClient
		fallback      *stubClient
		wantText      string
		wantErr       bool
		wantFallbacks int
	}{
		{"primary succeeds", &stubClient{resp: Response{Text: "primary"}}, &stubClient{}, "primary", false, 0},
		{"fallback succeeds", &stubClient{err: errors.New("down")}, &stubClient{resp: Response{Text: "fallback"}}, "fallback", false, 1},
		{"both fail", &stubClient{err: errors.New("down")}, &stubClient{err: errors.New("also down")}, "", true, 1},
		{"no fallback", &stubClient{err: errors.New("down")}, nil, "", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fb Client
			if tt.fallback != nil {
				fb = tt.fallback
			}
			resp, err := NewFallbackClient(tt.primary, fb, nil).Complete(context.Background(), Request{Model: "primary-model"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if resp.Text != tt.wantText {
				t.Fatalf("text = %q, want %q", resp.Text, tt.wantText)
			}
			if tt.fallback != nil {
				if tt.fallback.calls != tt.wantFallbacks {
					t.Fatalf("fallback calls = %d, want %d", tt.fallback.calls, tt.wantFallbacks)
				}
				if tt.fallback.calls > 0 && tt.fallback.model != "" {
					t.Fatalf("fallback should choose its own model, got %q", tt.fallback.model)
				}
			}
		})
	}
}
