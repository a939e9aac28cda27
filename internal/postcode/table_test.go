package postcode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseCode(t *testing.T) {
	tests := []struct {
		in   string
		want Code
		err  bool
	}{
		{"43", 0x2B, false},
		{"0x2B", 0x2B, false},
		{"0X2b", 0x2B, false},
		{"2Bh", 0x2B, false},
		{"ffH", 0xFF, false},
		{" 0 ", 0, false},
		{"256", 0, true},
		{"0x100", 0, true},
		{"zz", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCode(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCode_YAML(t *testing.T) {
	var v struct {
		Codes []Code `yaml:"codes"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("codes: [0x2B, 43, \"A0h\", 255]"), &v))
	assert.Equal(t, []Code{0x2B, 0x2B, 0xA0, 0xFF}, v.Codes)

	err := yaml.Unmarshal([]byte("codes: [300]"), &v)
	assert.Error(t, err)
}

func TestLoadDescriptions(t *testing.T) {
	d, err := LoadDescriptions(filepath.Join("testdata", "descriptions.yml"))
	require.NoError(t, err)

	s, ok := d.Lookup(0x19)
	assert.True(t, ok)
	assert.Equal(t, "Memory init", s)
	s, _ = d.Lookup(0x2B)
	assert.Equal(t, "POST complete", s)
	s, _ = d.Lookup(0xA0)
	assert.Equal(t, "Boot device selection", s)
	_, ok = d.Lookup(0x00)
	assert.False(t, ok)
	assert.Equal(t, []Code{0x19, 0x2B, 0xA0}, d.Codes())

	_, err = LoadDescriptions(filepath.Join("testdata", "missing.yml"))
	assert.Error(t, err)
}

func TestMerge_InlineWins(t *testing.T) {
	base := Descriptions{0x19: "Memory init", 0x2B: "old"}
	m := Merge(base, Descriptions{0x2B: "POST complete"})
	assert.Equal(t, "POST complete", m[0x2B])
	assert.Equal(t, "Memory init", m[0x19])
	assert.Equal(t, "old", base[0x2B], "исходная таблица не должна меняться")
}

func TestDescriptions_EmptyStringIsAbsent(t *testing.T) {
	d := Descriptions{0x01: ""}
	_, ok := d.Lookup(0x01)
	assert.False(t, ok)
	var nilTable Descriptions
	_, ok = nilTable.Lookup(0x01)
	assert.False(t, ok)
}

func TestIgnoreSet(t *testing.T) {
	s := NewIgnoreSet(0x00, 0x3F, 0x40, 0xFF)
	for c := 0; c < 256; c++ {
		want := c == 0x00 || c == 0x3F || c == 0x40 || c == 0xFF
		if got := s.Contains(Code(c)); got != want {
			t.Errorf("Contains(%02X) = %v, want %v", c, got, want)
		}
	}
	assert.Equal(t, []Code{0x00, 0x3F, 0x40, 0xFF}, s.Codes())

	var empty IgnoreSet
	assert.False(t, empty.Contains(0))
	assert.Empty(t, empty.Codes())
}

func TestParseDescriptions_NFC(t *testing.T) {
	d, err := ParseDescriptions(map[string]string{"0x19": " Е\u0308мкость памяти "})
	require.NoError(t, err)
	assert.Equal(t, "Ёмкость памяти", d[0x19])

	_, err = ParseDescriptions(map[string]string{"0x1FF": "x"})
	assert.Error(t, err)
}

func TestParseDescriptions_DuplicateSpellings(t *testing.T) {
	for i := 0; i < 20; i++ {
		_, err := ParseDescriptions(map[string]string{"0x2B": "POST complete", "43": "Boot", "19h": "Memory init"})
		require.Error(t, err)
		assert.EqualError(t, err, `code 2Bh: duplicate keys "0x2B" and "43"`, "сообщение не зависит от порядка обхода")
	}

	path := filepath.Join(t.TempDir(), "codes.yml")
	require.NoError(t, os.WriteFile(path, []byte("0x2B: POST complete\n2Bh: Boot\n"), 0o644))
	_, err := LoadDescriptions(path)
	assert.ErrorContains(t, err, "duplicate keys")
}
