package usecase

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultUserConfig(t *testing.T) {
	cfg := DefaultUserConfig()
	require.Equal(t, DefaultSystemInitMessage, cfg.SystemInitMessage())
	require.Equal(t, map[string]any{}, cfg.ExtraParams())

	cfg.ExtraParams()["temperature"] = 1
	require.Empty(t, DefaultUserConfig().ExtraParams())
}

func TestUserConfig_Set(t *testing.T) {
	cfg := DefaultUserConfig()

	require.NoError(t, cfg.Set(KeySystemInitMessage, "You are terse. a=b"))
	require.Equal(t, "You are terse. a=b", cfg.SystemInitMessage())

	require.NoError(t, cfg.Set(KeyExtraParams, `{"temperature":0.7,"max_tokens":100}`))
	require.Equal(t, map[string]any{"temperature": 0.7, "max_tokens": float64(100)}, cfg.ExtraParams())

	require.Error(t, cfg.Set("UNKNOWN", "1"))
	require.Error(t, cfg.Set(KeyExtraParams, `[1,2]`))
	require.Error(t, cfg.Set(KeyExtraParams, `null`))
	require.Equal(t, 0.7, cfg.ExtraParams()["temperature"])
}

func TestCoerce(t *testing.T) {
	cases := []struct {
		name    string
		kind    fieldKind
		raw     string
		want    any
		wantErr bool
	}{
		{name: "string passthrough", kind: kindString, raw: " spaced ", want: " spaced "},
		{name: "number", kind: kindNumber, raw: "1.5", want: 1.5},
		{name: "bad number", kind: kindNumber, raw: "one", wantErr: true},
		{name: "true", kind: kindBool, raw: "true", want: true},
		{name: "false", kind: kindBool, raw: "false", want: false},
		{name: "bool must be literal", kind: kindBool, raw: "yes", wantErr: true},
		{name: "object", kind: kindObject, raw: `{"a":1}`, want: map[string]any{"a": float64(1)}},
		{name: "array is not an object", kind: kindObject, raw: `[]`, wantErr: true},
		{name: "bad json", kind: kindObject, raw: `{`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := coerce(tc.kind, tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestUserConfig_Merge(t *testing.T) {
	cfg := DefaultUserConfig()
	err := cfg.merge(`{"SYSTEM_INIT_MESSAGE":42,"OPENAI_API_EXTRA_PARAMS":{"top_p":0.9},"EXTRA":"x"}`)
	require.NoError(t, err)
	require.Equal(t, DefaultSystemInitMessage, cfg.SystemInitMessage())
	require.Equal(t, map[string]any{"top_p": 0.9}, cfg.ExtraParams())
	require.NotContains(t, cfg, "EXTRA")

	cfg = DefaultUserConfig()
	require.NoError(t, cfg.merge(`{"OPENAI_API_EXTRA_PARAMS":null}`))
	require.Equal(t, map[string]any{}, cfg.ExtraParams())

	require.Error(t, DefaultUserConfig().merge(`[`))
}

func TestDecodeField(t *testing.T) {
	v, ok := decodeField(kindNumber, []byte(`3`))
	require.True(t, ok)
	require.Equal(t, float64(3), v)

	v, ok = decodeField(kindBool, []byte(`true`))
	require.True(t, ok)
	require.Equal(t, true, v)

	_, ok = decodeField(kindBool, []byte(`"true"`))
	require.False(t, ok)
}
