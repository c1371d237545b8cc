package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	BuildID    string    `json:"build_id"`
	CreatedAt  time.Time `json:"created_at"`
	Identities []string  `json:"identities"`
}

func TestCodecs(t *testing.T) {
	in := sample{
		BuildID:    "b-1",
		CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Identities: []string{"rex", "bella", "rex"},
	}

	for _, c := range []Codec{GoJSON{}, Msgpack{}} {
		t.Run(c.Name(), func(t *testing.T) {
			var out sample
			require.NoError(t, c.Unmarshal(MustMarshal(c, in), &out))
			assert.Equal(t, in.BuildID, out.BuildID)
			assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
			assert.Equal(t, in.Identities, out.Identities)

			id, err := IDOf(c)
			require.NoError(t, err)
			byID, ok := ByID(id)
			require.True(t, ok)
			assert.Equal(t, c.Name(), byID.Name())
		})
	}
}

func TestByName(t *testing.T) {
	c, ok := ByName("")
	require.True(t, ok)
	assert.Equal(t, "go-json", c.Name())

	c, ok = ByName("msgpack")
	require.True(t, ok)
	assert.Equal(t, "msgpack", c.Name())

	_, ok = ByName("gob")
	assert.False(t, ok)

	_, ok = ByID(0)
	assert.False(t, ok)
}
