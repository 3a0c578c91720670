package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValue(t *testing.T) {
	value, err := DecodeValue([]byte(` {"command":"ConnectTCP","ip":"127.0.0.1","port":8000} `))
	require.NoError(t, err)

	obj, ok := value.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, json.Number("8000"), obj["port"])

	for _, bad := range []string{`{bad`, ``, `{} {}`, `{}}`, `[1,2`} {
		_, err := DecodeValue([]byte(bad))
		assert.Error(t, err, "input %q", bad)
	}
}

func TestEncodeValueIsCompactAndUnescaped(t *testing.T) {
	value, err := DecodeValue([]byte(`{ "html" : "<b>&</b>", "n": 1.50 }`))
	require.NoError(t, err)

	data, err := EncodeValue(value)
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<b>&</b>","n":1.50}`, string(data))
}

func TestCommandOf(t *testing.T) {
	cases := []struct {
		input string
		want  CommandName
	}{
		{`{"command":"SendTCP","data":1}`, CommandSendTCP},
		{`{"command":"DestroyTCP"}`, CommandDestroyTCP},
		{`{"command":"Reboot"}`, "Reboot"},
		{`{"command":42}`, ""},
		{`{"other":"ConnectTCP"}`, ""},
		{`["command","ConnectTCP"]`, ""},
		{`"ConnectTCP"`, ""},
	}
	for _, tc := range cases {
		value, err := DecodeValue([]byte(tc.input))
		require.NoError(t, err)
		assert.Equal(t, tc.want, CommandOf(value), tc.input)
	}

	assert.True(t, CommandConnectTCP.Known())
	assert.False(t, CommandName("Reboot").Known())
}

func TestDecodeIntoConnect(t *testing.T) {
	value, err := DecodeValue([]byte(`{"command":"ConnectTCP","ip":"10.0.0.1","port":9000}`))
	require.NoError(t, err)

	var cmd ConnectTCP
	require.NoError(t, DecodeInto(value, &cmd))
	assert.Equal(t, "10.0.0.1", cmd.IP)
	port, ok := cmd.PortNumber()
	require.True(t, ok)
	assert.EqualValues(t, 9000, port)
}

func TestPortNumber(t *testing.T) {
	cases := []struct {
		input string
		want  int64
		ok    bool
	}{
		{`{"port":80}`, 80, true},
		{`{"port":80.0}`, 80, true},
		{`{"port":-1}`, -1, true},
		{`{"port":80.5}`, 0, false},
		{`{"port":"80"}`, 0, false},
		{`{"port":null}`, 0, false},
		{`{}`, 0, false},
	}
	for _, tc := range cases {
		value, err := DecodeValue([]byte(tc.input))
		require.NoError(t, err)
		var cmd ConnectTCP
		require.NoError(t, DecodeInto(value, &cmd))
		got, ok := cmd.PortNumber()
		assert.Equal(t, tc.ok, ok, tc.input)
		assert.Equal(t, tc.want, got, tc.input)
	}
}
