package eastmoney

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"
)

// This test uses go-vcr to record/replay a real push2 quote call.
// It skips by default if cassette is absent and RECORD_CASSETTES != 1.
func TestClient_GetQuote_Recorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "eastmoney_quote.yaml")
	if _, err := os.Stat(cassette); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s", cassette)
		}
		err := os.MkdirAll(filepath.Dir(cassette), 0o755)
		assert.NoError(t, err, "mkdir cassettes dir should succeed")
	}

	r, err := recorder.New(cassette)
	assert.NoError(t, err, "recorder.New should not error")
	assert.NotNil(t, r, "recorder should not be nil")
	defer func() { _ = r.Stop() }()

	client := NewClient(WithHTTPClient(&http.Client{Transport: r}))
	data, err := client.getQuote(context.Background(), "1.600000")
	assert.NoError(t, err, "getQuote should not error")
	assert.NotNil(t, data, "quote data should not be nil")
	assert.Greater(t, data.Price, 0.0, "price should be positive")
}
