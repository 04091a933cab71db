package dpc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# bench sensor
dictionary:
  enabled: true
  label: Sensor1
  sn: 7
  add: false
  config:
    key:
      temperature:
        value: "21.5"
        remove: true
      mode:
        value: 3
  log:
    key:
      temperature:
        interval:
          min: 10
`

func parseSample(t *testing.T) *Document {
	t.Helper()
	doc, err := Parse([]byte(sample))
	require.NoError(t, err)
	return doc
}

func TestGetters(t *testing.T) {
	doc := parseSample(t)

	assert.Equal(t, "Sensor1", doc.Get(PathLabel, ""))
	assert.Equal(t, "default", doc.Get(PathGeneration, "default"))

	sn, err := doc.Int(PathSerial, -1)
	require.NoError(t, err)
	assert.Equal(t, 7, sn)

	enabled, err := doc.Bool(PathEnabled, false)
	require.NoError(t, err)
	assert.True(t, enabled)

	update, err := doc.Bool(ConfigKey("temperature", "update"), true)
	require.NoError(t, err)
	assert.True(t, update, "absent update defaults to true")

	min, err := doc.Int(LogKey("temperature", "interval", "min"), -1)
	require.NoError(t, err)
	assert.Equal(t, 10, min)

	_, err = doc.Int(PathLabel, 0)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = doc.String(PathConfigKeys)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	assert.Equal(t, []string{"temperature", "mode"}, doc.EntryNames(PathConfigKeys))
	assert.Nil(t, doc.EntryNames("dictionary.nothing"))
}

func TestAddUpdateRemove(t *testing.T) {
	doc := parseSample(t)

	require.NoError(t, doc.Add(ConfigKey("humidity", "value"), "40"))
	assert.Equal(t, "40", doc.Get(ConfigKey("humidity", "value"), ""))
	assert.ErrorIs(t, doc.Add(ConfigKey("humidity", "value"), "41"), ErrExists)

	require.NoError(t, doc.Update(ConfigKey("temperature", "value"), "22.0"))
	assert.Equal(t, "22.0", doc.Get(ConfigKey("temperature", "value"), ""))

	// mode holds an int; a string is a type mismatch
	err := doc.Update(ConfigKey("mode", "value"), "fast")
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Equal(t, "3", doc.Get(ConfigKey("mode", "value"), ""))

	require.NoError(t, doc.Set(ConfigKey("mode", "value"), "fast"))
	assert.Equal(t, "fast", doc.Get(ConfigKey("mode", "value"), ""))

	assert.ErrorIs(t, doc.Update("dictionary.absent", "x"), ErrNotFound)

	require.NoError(t, doc.Remove(ConfigKey("temperature")))
	assert.False(t, doc.Exists(ConfigKey("temperature", "value")))
	assert.ErrorIs(t, doc.Remove(ConfigKey("temperature")), ErrNotFound)

	// crossing a scalar is not a path
	assert.ErrorIs(t, doc.Add("dictionary.label.sub", "x"), ErrNotBlock)
}

func TestReplaceKeepsPosition(t *testing.T) {
	doc := parseSample(t)
	require.NoError(t, doc.Replace(ConfigKey("temperature"), "gone"))
	assert.Equal(t, []string{"temperature", "mode"}, doc.EntryNames(PathConfigKeys))
	assert.Equal(t, "gone", doc.Get(ConfigKey("temperature"), ""))
	assert.ErrorIs(t, doc.Replace(ConfigKey("nope"), "x"), ErrNotFound)
}

func TestRenderRoundTrip(t *testing.T) {
	doc := parseSample(t)
	require.NoError(t, doc.Set(ConfigKey("temperature", "value"), "23.5"))

	out, err := doc.Render()
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "# bench sensor", "comments survive rendering")
	assert.Contains(t, text, `value: "23.5"`)

	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "23.5", again.Get(ConfigKey("temperature", "value"), ""))
}

func TestRenderJSON(t *testing.T) {
	doc := parseSample(t)
	out, err := doc.RenderJSON()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), `{"dictionary":{"enabled":true,"label":"Sensor1","sn":7`))

	var v map[string]any
	require.NoError(t, json.Unmarshal(out, &v))
	dict := v["dictionary"].(map[string]any)
	key := dict["config"].(map[string]any)["key"].(map[string]any)
	assert.Equal(t, "21.5", key["temperature"].(map[string]any)["value"])
}

func TestParseEmptyAndInvalid(t *testing.T) {
	doc, err := Parse(nil)
	require.NoError(t, err)
	assert.False(t, doc.Exists(PathLabel))

	_, err = Parse([]byte("- a\n- b\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("dictionary: [unclosed\n"))
	assert.Error(t, err)
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "7.dpc")

	doc := New()
	require.NoError(t, doc.Add(PathEnabled, true))
	require.NoError(t, doc.Add(PathSerial, 7))
	require.NoError(t, doc.Add(PathLabel, "Sensor1"))
	require.NoError(t, doc.WriteFile(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	got, err := ParseFile(path)
	require.NoError(t, err)
	sn, err := got.Int(PathSerial, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, sn)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.dpc"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"temperature", true},
		{"Temp_1", true},
		{"room/2-a", true},
		{"9lives", true},
		{"", false},
		{"_hidden", false},
		{"a.b", false},
		{"a b", false},
		{"quote'", false},
		{strings.Repeat("k", MaxKeyLength), true},
		{strings.Repeat("k", MaxKeyLength+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidKey(tt.key))
		})
	}
}
