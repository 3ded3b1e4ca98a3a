package transport

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soeminnminn/run-js/internal/console"
	"github.com/soeminnminn/run-js/internal/serialize"
)

func logEvent(data ...any) console.Event {
	return console.Event{Command: console.KindLog, Timestamp: "10:00:00.000", Data: data}
}

func TestBuffer(t *testing.T) {
	b := NewBuffer()
	b.Accept(logEvent("a"))
	b.Accept(logEvent("b"))

	assert.Equal(t, 2, b.Len())
	assert.Len(t, b.Events(), 2)

	drained := b.Drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, b.Len())
}

func TestChannelDropsInsteadOfBlocking(t *testing.T) {
	var dropped []console.Event
	c := NewChannel(2, func(e console.Event) { dropped = append(dropped, e) })

	for i := 0; i < 5; i++ {
		c.Accept(logEvent(i))
	}
	assert.Equal(t, int64(3), c.Dropped())
	assert.Len(t, dropped, 3)

	first := <-c.Events()
	assert.Equal(t, []any{0}, first.Data)

	c.Close()
	c.Close()
	assert.NotPanics(t, func() { c.Accept(logEvent("late")) })
	assert.Equal(t, int64(4), c.Dropped())

	var rest []console.Event
	for e := range c.Events() {
		rest = append(rest, e)
	}
	assert.Len(t, rest, 1)
}

func TestThrottle(t *testing.T) {
	b := NewBuffer()
	th := NewThrottle(b, 0.001, 2, console.KindError)

	for i := 0; i < 5; i++ {
		th.Accept(logEvent(i))
	}
	th.Accept(console.Event{Command: console.KindError, Message: "always"})

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, int64(3), th.Suppressed())
	assert.Equal(t, console.KindError, b.Events()[2].Command)
}

func TestEncodingSink(t *testing.T) {
	b := NewBuffer()
	s := NewEncoding(b, serialize.New(), 2)

	s.Accept(logEvent([]any{1, 2, 3}, math.Inf(-1), make(chan int)))

	e := b.Events()[0]
	require.Len(t, e.Data, 4)
	assert.Equal(t, []any{1, 2, serialize.Marker(1)}, e.Data[0])
	assert.Equal(t, map[string]any{"@t": "Arithmetic", "data": 1}, e.Data[1])
	assert.IsType(t, "", e.Data[2])
	assert.Equal(t, serialize.Marker(1), e.Data[3])
}

func TestTee(t *testing.T) {
	a, b := NewBuffer(), NewBuffer()
	Tee{a, b}.Accept(logEvent("x"))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestScrub(t *testing.T) {
	in := map[string]any{
		"n":    1,
		"f":    2.5,
		"list": []any{"s", nil, true, complex(1, 2)},
	}
	out := Scrub(in).(map[string]any)
	assert.Equal(t, 1, out["n"])
	assert.Equal(t, 2.5, out["f"])
	assert.Equal(t, []any{"s", nil, true, "(1+2i)"}, out["list"])
}

func TestCodecRoundTrip(t *testing.T) {
	names := []string{"json", "msgpack", "json+gzip", "json+zstd", "msgpack+zstd", "msgpack+s2", ""}
	r := serialize.New()
	event := r.EncodeEvent(console.Event{
		Command:   console.KindError,
		Timestamp: "12:00:00.001",
		Message:   "boom",
		Level:     2,
		Data:      []any{"x", math.Copysign(0, -1), map[string]any{"a": []any{"b"}}},
		Trace:     []string{"f()@<eval>:1:1"},
	}, 10)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			c, err := ParseCodec(name)
			require.NoError(t, err)
			defer c.Close()

			raw, err := c.Marshal(event)
			require.NoError(t, err)

			var got console.Event
			require.NoError(t, c.Unmarshal(raw, &got))
			assert.Equal(t, event.Command, got.Command)
			assert.Equal(t, event.Message, got.Message)
			assert.Equal(t, event.Level, got.Level)
			assert.Equal(t, event.Trace, got.Trace)

			dec := r.DecodeEvent(got)
			require.Len(t, dec.Data, 3)
			assert.Equal(t, "x", dec.Data[0])
			assert.True(t, math.Signbit(dec.Data[1].(float64)))
			assert.Equal(t, map[string]any{"a": []any{"b"}}, dec.Data[2])
		})
	}
}

func TestCodecMetadata(t *testing.T) {
	c, err := ParseCodec("MSGPACK+zstd")
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "msgpack+zstd", c.Name())
	assert.Equal(t, "application/msgpack", c.ContentType())
	assert.Equal(t, "zstd", c.ContentEncoding())
	assert.True(t, c.Binary())

	j, err := ParseCodec("json")
	require.NoError(t, err)
	assert.False(t, j.Binary())
	assert.Equal(t, "application/json", j.ContentType())
}

func TestCodecErrors(t *testing.T) {
	_, err := ParseCodec("xml")
	assert.True(t, errors.Is(err, ErrUnknownFormat))

	_, err = ParseCodec("json+lz4")
	assert.True(t, errors.Is(err, ErrUnknownCompression))

	c, err := ParseCodec("json+gzip")
	require.NoError(t, err)
	var v any
	assert.Error(t, c.Unmarshal([]byte("not gzip"), &v))
}

func TestCodecsShareInstances(t *testing.T) {
	set := NewCodecs()
	defer set.Close()

	a, err := set.Get("MsgPack+ZSTD")
	require.NoError(t, err)
	b, err := set.Get("msgpack+zstd")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "msgpack+zstd", a.Name())

	def, err := set.Get("")
	require.NoError(t, err)
	assert.Equal(t, "json", def.Name())

	_, err = set.Get("xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = set.Get("json+lz4")
	assert.ErrorIs(t, err, ErrUnknownCompression)
}
