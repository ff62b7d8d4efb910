package core

import (
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
	}{
		{"0", 0},
		{"1024", 1024},
		{"256MB", 256 * MB},
		{"256mb", 256 * MB},
		{"64Mi", 64 * MiB},
		{"1.5GiB", ByteSize(1.5 * float64(GiB))},
		{" 10 kb ", 10 * KB},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseByteSize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseByteSize_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "MB", "12 parsecs", "-4KB"} {
		_, err := ParseByteSize(in)
		assert.Error(t, err, in)
	}
}

func TestByteSize_TOML(t *testing.T) {
	var cfg struct {
		Capacity ByteSize `toml:"capacity"`
	}
	require.NoError(t, toml.Unmarshal([]byte(`capacity = "2MiB"`), &cfg))
	assert.Equal(t, 2*MiB, cfg.Capacity)

	assert.Error(t, toml.Unmarshal([]byte(`capacity = "lots"`), &cfg))
}

func TestByteSize_String(t *testing.T) {
	assert.Equal(t, "512B", ByteSize(512).String())
	assert.Equal(t, "1.50KiB", ByteSize(1536).String())
	assert.Equal(t, "256.00MiB", (256 * MiB).String())
	assert.Equal(t, "2.00GiB", (2 * GiB).String())
}

func TestBytesToMegabytes(t *testing.T) {
	assert.InDelta(t, 256.0, BytesToMegabytes(256_000_000), 1e-9)
}
