package romdefs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDefs = `<?xml version="1.0"?>
<logger>
  <logprotocols>
    <logprotocol type="OBD"/>
    <logprotocol type="SSM">
      <ecu id="BASE" type="base" name="Base">
        <parameter id="Engine Speed" storagetype="uint16" offset="0x00000E" type="float"/>
        <parameter id="Coolant Temperature" storagetype="uint8" offset="0x000008"/>
        <parameter id="Defogger Switch" storagetype="uint8" offset="0x000064" type="bool" bit="6"/>
        <parameter id="Broken" storagetype="float" offset="0x0001"/>
      </ecu>
      <ecu id="" type="turbo" name="Turbo" include="base, turbo">
        <parameter id="Wastegate Duty" storagetype="uint8" offset="#000030"/>
        <parameter id="Engine Speed" storagetype="uint16" offset="0x00000E"/>
        <parameter id="Bad Offset" storagetype="uint8" offset="zz"/>
      </ecu>
      <ecu id="3D54444006" type="wrx06" name="2006 WRX" include="turbo">
        <parameter id="Boost Switch" storagetype="uint8" offset="0x000121" type="BOOL" bit="1"/>
      </ecu>
      <ecu id="3DFFFFFFFF" type="generic3d" name="Generic 3D"/>
      <ecu id="3D54FFFFFF" type="wrx" name="WRX family" include="base"/>
    </logprotocol>
  </logprotocols>
</logger>`

func parseSample(t *testing.T) *Definitions {
	t.Helper()
	defs, err := Parse(strings.NewReader(sampleDefs))
	require.NoError(t, err)
	return defs
}

func TestLookupExactWithIncludes(t *testing.T) {
	ecu, err := parseSample(t).Lookup("3d54444006")
	require.NoError(t, err)

	assert.Equal(t, "2006 WRX", ecu.Name)
	assert.Equal(t, "wrx06", ecu.Type)
	// Engine Speed (deduplicated), Coolant Temperature, Wastegate Duty
	assert.Equal(t, uint(3), ecu.MemoryBlocks)
	// Defogger Switch, Boost Switch
	assert.Equal(t, uint(2), ecu.Switches)
	// Broken, Bad Offset
	assert.Equal(t, uint(2), ecu.Skipped)
}

func TestLookupPrefersFewestWildcards(t *testing.T) {
	ecu, err := parseSample(t).Lookup("3D54000000")
	require.NoError(t, err)
	assert.Equal(t, "WRX family", ecu.Name)
	assert.Equal(t, uint(2), ecu.MemoryBlocks)
	assert.Equal(t, uint(1), ecu.Switches)

	ecu, err = parseSample(t).Lookup("3D00000000")
	require.NoError(t, err)
	assert.Equal(t, "Generic 3D", ecu.Name)
	assert.Zero(t, ecu.MemoryBlocks)
}

func TestLookupUnknown(t *testing.T) {
	_, err := parseSample(t).Lookup("4B12000000")
	assert.ErrorIs(t, err, ErrUnknownROM)

	_, err = parseSample(t).Lookup("3D54")
	assert.ErrorIs(t, err, ErrUnknownROM)
}

func TestParseWithoutSSM(t *testing.T) {
	_, err := Parse(strings.NewReader(`<logger><logprotocols><logprotocol type="OBD"/></logprotocols></logger>`))
	assert.ErrorIs(t, err, ErrNoSSMProtocol)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log_defs.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDefs), 0o644))

	defs, err := Load(path)
	require.NoError(t, err)
	_, err = defs.Lookup("3D54444006")
	assert.NoError(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}
