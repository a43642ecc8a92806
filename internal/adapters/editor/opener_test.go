package editor

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpener_FindEditor(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		installed []string
		want      string
	}{
		{"editor wins", map[string]string{"EDITOR": "hx", "VISUAL": "code"}, []string{"vim"}, "hx"},
		{"visual next", map[string]string{"VISUAL": "code --wait"}, nil, "code --wait"},
		{"first installed", nil, []string{"vi", "nano"}, "/usr/bin/vi"},
		{"none", nil, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Opener{
				getenv: func(k string) string { return tt.env[k] },
				lookPath: func(name string) (string, error) {
					for _, n := range tt.installed {
						if n == name {
							return "/usr/bin/" + n, nil
						}
					}
					return "", errors.New("not found")
				},
			}
			assert.Equal(t, tt.want, o.findEditor())
		})
	}
}

func TestOpener_CommandSplitsArguments(t *testing.T) {
	o := &Opener{
		getenv:   func(k string) string { return map[string]string{"EDITOR": "code --wait"}[k] },
		lookPath: func(string) (string, error) { return "", errors.New("not found") },
	}
	cmd, err := o.Command("/tmp/x.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "--wait", "/tmp/x.json"}, cmd.Args)

	o.getenv = func(string) string { return "" }
	_, err = o.Command("/tmp/x.json")
	assert.Error(t, err)
}

func TestDataFile(t *testing.T) {
	f, err := WriteDataFile("n1", json.RawMessage(`{"title":"Q1","format":"markdown"}`))
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(f.Path) })

	written, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Contains(t, string(written), "\n  \"title\": \"Q1\"")

	data, changed, err := f.Read()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.JSONEq(t, `{"title":"Q1","format":"markdown"}`, string(data))

	require.NoError(t, os.WriteFile(f.Path, []byte(`{"title": "Q2"}`), 0o600))
	data, changed, err = f.Read()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, `{"title":"Q2"}`, string(data))

	require.NoError(t, os.WriteFile(f.Path, []byte(`{"title":`), 0o600))
	_, _, err = f.Read()
	assert.Error(t, err)

	require.NoError(t, f.Remove())
	_, err = os.Stat(f.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestDataFile_EmptyData(t *testing.T) {
	f, err := WriteDataFile("n1", nil)
	require.NoError(t, err)
	t.Cleanup(func() { f.Remove() })

	data, changed, err := f.Read()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "{}", string(data))
}
