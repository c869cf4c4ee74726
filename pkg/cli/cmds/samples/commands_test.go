package samples

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/disconnect/pkg/image"
)

func TestParseSpec(t *testing.T) {
	role, weight, fn, err := ParseSpec("music:10:ring:1.wav")
	require.NoError(t, err)
	require.Equal(t, image.RoleMusic, role)
	require.Equal(t, uint8(10), weight)
	require.Equal(t, "ring:1.wav", fn)

	for _, spec := range []string{"music:10", "jazz:1:a.wav", "free:256:a.wav", "free:-1:a.wav"} {
		_, _, _, err := ParseSpec(spec)
		require.Errorf(t, err, "spec %q", spec)
	}
}

func TestLoadSamplesMissingFile(t *testing.T) {
	_, err := LoadSamples([]string{"free:1:/nonexistent/a.wav"})
	require.Error(t, err)
}

func TestDescribe(t *testing.T) {
	out := Describe([]image.Descriptor{
		{Role: image.RoleFree, Weight: 10, Page: 1, Pages: 2, Odd: 5},
	}, 16)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Equal(t, "1 samples", lines[0])
	require.Equal(t, "  0: free  weight  10 page 0001 bytes 37", lines[1])
}
