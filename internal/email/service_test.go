package email

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type recordingDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *recordingDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func TestSendCode(t *testing.T) {
	d := &recordingDialer{}
	svc := NewService(d, "no-reply@opinion.test")

	require.NoError(t, svc.SendCode(context.Background(), "dr@example.com", "123456"))
	require.Len(t, d.sent, 1)

	m := d.sent[0]
	assert.Equal(t, []string{"no-reply@opinion.test"}, m.GetHeader("From"))
	assert.Equal(t, []string{"dr@example.com"}, m.GetHeader("To"))

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "123456")
}

func TestSendFailures(t *testing.T) {
	d := &recordingDialer{err: errors.New("connection refused")}
	svc := NewService(d, "no-reply@opinion.test")
	assert.Error(t, svc.SendCustom(context.Background(), "dr@example.com", "s", "b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.err = nil
	assert.ErrorIs(t, svc.SendCode(ctx, "dr@example.com", "1"), context.Canceled)
	assert.Len(t, d.sent, 1)
}
