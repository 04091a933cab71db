package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/dictserver/internal/dpc"
	"github.com/muurk/dictserver/internal/status"
)

type params map[string]string

func (p params) Lookup(name string) (string, bool) {
	v, ok := p[name]
	return v, ok
}

func TestCreateDictionaryAllocatesSerial(t *testing.T) {
	f := newFixture(t, map[string]string{
		"6.dpc": "dictionary:\n  enabled: true\n  label: six\n  sn: 6\n",
	})
	f.load(t)
	require.Equal(t, 7, f.store.NextSerial())

	sn, err := f.store.CreateDictionary(context.Background(), NewDictionary{Serial: -1, Label: "Sensor1", Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, 7, sn)
	assert.Equal(t, 8, f.store.NextSerial())

	doc := f.readDoc(t, 7)
	assert.Equal(t, "Sensor1", doc.Get(dpc.PathLabel, ""))
	got, _ := doc.Int(dpc.PathSerial, 0)
	assert.Equal(t, 7, got)
	add, _ := doc.Bool(dpc.PathAdd, true)
	assert.False(t, add)

	infos := f.store.Dictionaries()
	require.Len(t, infos, 2)
	assert.Equal(t, Info{Serial: 7, Label: "Sensor1", Generation: DefaultGeneration}, infos[0], "newest first")
}

func TestCreateDictionaryExplicitSerial(t *testing.T) {
	f := newFixture(t, map[string]string{"7.dpc": sensorDPC})
	f.load(t)
	ctx := context.Background()

	_, err := f.store.CreateDictionary(ctx, NewDictionary{Serial: 7, Label: "dup", Enabled: true})
	assert.True(t, status.IsBusy(err), "got %v", err)

	_, err = f.store.CreateDictionary(ctx, NewDictionary{Serial: 20, Enabled: true})
	assert.Equal(t, status.InvalidArg, status.CodeOf(err))

	sn, err := f.store.CreateDictionary(ctx, NewDictionary{Serial: 20, Label: "twenty", Generation: "v2", Enabled: true, ConfigAdd: true})
	require.NoError(t, err)
	assert.Equal(t, 20, sn)
	assert.Equal(t, 21, f.store.NextSerial())
	assert.True(t, f.dict(t, 20).AddConfig())
	assert.Equal(t, "v2", f.dict(t, 20).Info().Generation)
}

func TestCreateDictionaryInstallFailureRemovesFile(t *testing.T) {
	f := newFixture(t, nil)
	f.bridge.AttachHook = func(ctx context.Context, serial int) error { return context.DeadlineExceeded }

	_, err := f.store.CreateDictionary(context.Background(), NewDictionary{Serial: -1, Label: "x", Enabled: true})
	require.Error(t, err)
	_, statErr := os.Stat(f.store.ConfigPath(1))
	assert.True(t, os.IsNotExist(statErr))
}

func TestAddKey(t *testing.T) {
	f := newFixture(t, map[string]string{"7.dpc": sensorDPC})
	f.load(t)
	ctx := context.Background()

	require.NoError(t, f.store.AddKey(ctx, 7, "setpoint", "18"))
	m, ok := f.dict(t, 7).Match("setpoint")
	require.True(t, ok)
	assert.Equal(t, MatchConfig|MatchUpdate, m.Flags)
	assert.Equal(t, "18", f.readDoc(t, 7).Get(dpc.ConfigKey("setpoint", "value"), ""))

	err := f.store.AddKey(ctx, 7, "setpoint", "19")
	assert.True(t, status.IsDuplicate(err), "got %v", err)
	assert.Equal(t, "18", f.readDoc(t, 7).Get(dpc.ConfigKey("setpoint", "value"), ""), "file untouched on failure")

	assert.Equal(t, status.InvalidArg, status.CodeOf(f.store.AddKey(ctx, 7, "bad key", "1")))
	assert.Equal(t, status.InvalidArg, status.CodeOf(f.store.AddKey(ctx, 99, "k", "1")))
}

func TestRemoveKey(t *testing.T) {
	f := newFixture(t, map[string]string{"7.dpc": sensorDPC})
	f.load(t)
	ctx := context.Background()

	require.NoError(t, f.store.RemoveKey(ctx, 7, "locked"))
	_, ok := f.dict(t, 7).Match("locked")
	assert.False(t, ok)
	assert.False(t, f.readDoc(t, 7).Exists(dpc.ConfigKey("locked")))

	err := f.store.RemoveKey(ctx, 7, "locked")
	assert.Equal(t, status.InvalidArg, status.CodeOf(err))
	assert.Equal(t, "invalid key", status.MessageOf(err))
}

func TestUpdateDictionary(t *testing.T) {
	f := newFixture(t, map[string]string{"7.dpc": sensorDPC})
	f.load(t)
	ctx := context.Background()

	require.NoError(t, f.store.UpdateDictionary(ctx, 7, params{"label": "Kitchen", "generation": "g2", "configadd": "false"}))
	d := f.dict(t, 7)
	assert.Equal(t, Info{Serial: 7, Label: "Kitchen", Generation: "g2"}, d.Info())
	assert.False(t, d.AddConfig())

	doc := f.readDoc(t, 7)
	assert.Equal(t, "Kitchen", doc.Get(dpc.PathLabel, ""))
	add, _ := doc.Bool(dpc.PathAdd, true)
	assert.False(t, add)
	enabled, _ := doc.Bool(dpc.PathEnabled, false)
	assert.True(t, enabled, "absent fields are left alone")

	err := f.store.UpdateDictionary(ctx, 7, params{"enabled": "maybe", "label": "Nope"})
	assert.Equal(t, status.InvalidArg, status.CodeOf(err))
	assert.Equal(t, "Kitchen", d.Info().Label, "failed update changes nothing")
	assert.Equal(t, "Kitchen", f.readDoc(t, 7).Get(dpc.PathLabel, ""))
}

func TestUpdateKey(t *testing.T) {
	f := newFixture(t, map[string]string{"7.dpc": sensorDPC})
	f.load(t)
	ctx := context.Background()

	require.NoError(t, f.store.UpdateKey(ctx, 7, "locked", params{
		"update":       "true",
		"remove":       "true",
		"value":        "off",
		"cfg_type":     "switch",
		"cfg_readonly": "true",
		"cfg_order":    "3",
		"cfg_label":    "Lock",
	}))

	m, _ := f.dict(t, 7).Match("locked")
	assert.Equal(t, MatchConfig|MatchUpdate|MatchRemove, m.Flags)
	assert.Equal(t, "off", m.Value)

	doc := f.readDoc(t, 7)
	assert.Equal(t, "off", doc.Get(dpc.ConfigKey("locked", "value"), ""))
	assert.Equal(t, "switch", doc.Get(dpc.ConfigKey("locked", "layout", "type"), ""))
	assert.Equal(t, "3", doc.Get(dpc.ConfigKey("locked", "layout", "order"), ""))
	ro, _ := doc.Bool(dpc.ConfigKey("locked", "layout", "readonly"), false)
	assert.True(t, ro)

	// a new type drops the old layout block; readonly absent is removed
	require.NoError(t, f.store.UpdateKey(ctx, 7, "locked", params{"cfg_type": "slider"}))
	doc = f.readDoc(t, 7)
	assert.Equal(t, []string{"type"}, doc.EntryNames(dpc.ConfigKey("locked", "layout")))

	// no type at all turns layout off
	require.NoError(t, f.store.UpdateKey(ctx, 7, "locked", params{"value": "on"}))
	doc = f.readDoc(t, 7)
	assert.Equal(t, "false", doc.Get(dpc.ConfigKey("locked", "layout"), ""))

	err := f.store.UpdateKey(ctx, 7, "locked", params{"cfg_order": "1"})
	assert.Equal(t, status.InvalidArg, status.CodeOf(err))

	err = f.store.UpdateKey(ctx, 7, "ghost", params{"value": "1"})
	assert.Equal(t, "invalid key", status.MessageOf(err))
}

func TestUpdateKeyTypeMismatchReplaces(t *testing.T) {
	text := strings.Replace(sensorDPC, `value: "21.5"`, "value: 21.5", 1)
	f := newFixture(t, map[string]string{"7.dpc": text})
	f.load(t)

	require.NoError(t, f.store.UpdateKey(context.Background(), 7, "temperature", params{"value": "warm", "cfg_type": "text"}))
	doc := f.readDoc(t, 7)
	assert.Equal(t, "warm", doc.Get(dpc.ConfigKey("temperature", "value"), ""))
	assert.Equal(t, []string{"value", "layout"}, doc.EntryNames(dpc.ConfigKey("temperature")))
}

func TestRemoveDictionary(t *testing.T) {
	f := newFixture(t, map[string]string{"7.dpc": sensorDPC})
	f.load(t)
	ctx := context.Background()
	d := f.dict(t, 7)

	require.NoError(t, f.store.RemoveDictionary(ctx, 7))
	assert.Empty(t, f.store.Dictionaries())
	assert.Nil(t, d.Log(), "log database is closed")

	_, err := os.Stat(f.store.ConfigPath(7))
	assert.True(t, os.IsNotExist(err))
	aside, _ := filepath.Glob(filepath.Join(f.dir, "7.dpc.*"))
	assert.Len(t, aside, 1, "config file is renamed aside, not deleted")

	err = f.store.RemoveDictionary(ctx, 7)
	assert.Equal(t, status.InvalidArg, status.CodeOf(err))

	// removing frees the serial for reuse
	_, err = f.store.CreateDictionary(ctx, NewDictionary{Serial: 7, Label: "again", Enabled: true})
	assert.NoError(t, err)
}
