package markdown

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	out  string
	err  error
	args []string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.args = append([]string{name}, args...)
	return []byte(s.out), nil, s.err
}

func TestPdftotextEngine(t *testing.T) {
	r := &stubRunner{out: "TABLE 1. Age\n  SOA   58\f  EEA   61\n\f"}
	text, warnings, err := PdftotextEngine{Runner: r}.Convert("/tmp/a.pdf")
	require.NoError(t, err)
	assert.Zero(t, warnings)
	assert.Equal(t, "TABLE 1. Age\n  SOA   58\n\n---\n\n  EEA   61", text)
	assert.Equal(t, []string{"pdftotext", "-layout", "-enc", "UTF-8", "-eol", "unix", "/tmp/a.pdf", "-"}, r.args)

	_, _, err = PdftotextEngine{Bin: "/opt/pdftotext", Runner: &stubRunner{err: errors.New("exit status 1")}}.Convert("x.pdf")
	assert.Error(t, err)
}

func TestDefaultEnginesOrder(t *testing.T) {
	engines := DefaultEngines(nil)
	require.GreaterOrEqual(t, len(engines), 2)
	assert.Equal(t, "tabula", engines[0].Name())
	assert.Equal(t, "plaintext", engines[len(engines)-1].Name())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...(truncated)", truncate("abcdef", 2))
}
