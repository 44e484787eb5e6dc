package versionmark

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omr-engine/internal/layout"
)

// slowOCRClient mimics the client's statefulness: Text reads whatever image
// was set last, after a pause that widens any interleaving window.
type slowOCRClient struct {
	image []byte
}

func (c *slowOCRClient) SetPageSegMode(gosseract.PageSegMode) error { return nil }

func (c *slowOCRClient) SetWhitelist(string) error { return nil }

func (c *slowOCRClient) Close() error { return nil }

func (c *slowOCRClient) SetImageFromBytes(b []byte) error {
	c.image = b
	return nil
}

func (c *slowOCRClient) Text() (string, error) {
	time.Sleep(50 * time.Microsecond)
	return string(c.image), nil
}

// Concurrent recognitions on one reader must each get their own sheet's
// text back, never a sibling's.
func TestReadLetterSerializesClientAccess(t *testing.T) {
	r := &Reader{client: &slowOCRClient{}, opts: DefaultOptions()}

	const workers = 8
	const rounds = 25

	var wg sync.WaitGroup
	errs := make(chan error, workers*rounds)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				want := fmt.Sprintf("sheet-%d-%d", w, i)
				got, err := r.readLetter([]byte(want))
				if err != nil {
					errs <- err
					continue
				}
				if got != want {
					errs <- fmt.Errorf("read %q, want %q", got, want)
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		text string
		want layout.Version
		ok   bool
	}{
		{"A", "A", true},
		{" b \n", "B", true},
		{"VERSION: C", "C", true},
		{"d.", "D", true},
		{"", "", false},
		{"E", "", false},
		{"123", "", false},
	}
	for _, tt := range tests {
		got, ok := parseVersion(tt.text)
		assert.Equal(t, tt.ok, ok, "text %q", tt.text)
		assert.Equal(t, tt.want, got, "text %q", tt.text)
	}
}

func TestDefaultOptionsBoxInsideFrame(t *testing.T) {
	b := DefaultOptions().Bounds.Clamp(1240, 1754)
	assert.False(t, b.Empty())
	assert.Equal(t, DefaultOptions().Bounds, b, "default box must already fit the canonical frame")
}
