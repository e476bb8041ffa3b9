package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
)

type echo struct {
	Text string `json:"text"`
}

func startServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(time.Second)
	s.Register("Echo.Say", func(ctx context.Context, req json.RawMessage) (any, error) {
		var in echo
		if err := json.Unmarshal(req, &in); err != nil {
			return nil, apperrors.Invalidf("bad params: %v", err)
		}
		if in.Text == "" {
			return nil, apperrors.Invalidf("text is required")
		}
		return echo{Text: "you said " + in.Text}, nil
	})
	require.NoError(t, s.Listen("127.0.0.1:0"))
	go s.Accept()
	t.Cleanup(s.Stop)
	return s
}

func TestCallRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := startServer(t)
	assert.Equal(t, 1, s.MethodCount())

	c, err := Dial(s.Addr())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out echo
	require.NoError(t, c.Call(ctx, "Echo.Say", echo{Text: "hi"}, &out))
	assert.Equal(t, "you said hi", out.Text)

	err = c.Call(ctx, "Echo.Say", echo{}, &out)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	err = c.Call(ctx, "Echo.Shout", echo{Text: "hi"}, &out)
	assert.Error(t, err)

	s.Stop()
}

func TestDialFailure(t *testing.T) {
	_, err := DialTimeout("127.0.0.1:1", 200*time.Millisecond)
	assert.True(t, errors.Is(err, apperrors.ErrUnavailable))
}
