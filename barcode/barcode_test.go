package barcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValidCodes(t *testing.T) {
	tests := []struct {
		code string
		want Identifier
	}{
		{"CRS25WT36-00042", Identifier{CompanyTag: "CRS", Year: 25, FrameTag: "W", Backsheet: "T", PanelType: 36, Sequence: 42}},
		{"CRS24BC72-99999", Identifier{CompanyTag: "CRS", Year: 24, FrameTag: "B", Backsheet: "C", PanelType: 72, Sequence: 99999}},
		{"CRS26WW144-00001", Identifier{CompanyTag: "CRS", Year: 26, FrameTag: "W", Backsheet: "W", PanelType: 144, Sequence: 1}},
		{"CRS20BT40-00100", Identifier{CompanyTag: "CRS", Year: 20, FrameTag: "B", Backsheet: "T", PanelType: 40, Sequence: 100}},
		{"CRS45WT60-54321", Identifier{CompanyTag: "CRS", Year: 45, FrameTag: "W", Backsheet: "T", PanelType: 60, Sequence: 54321}},
	}
	for _, tt := range tests {
		got, err := Decode(tt.code)
		require.NoError(t, err, "code %s", tt.code)
		assert.Equal(t, tt.want, *got, "code %s", tt.code)
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	codes := []string{
		"CRS25WT36-00042",
		"CRS30BW72-00007",
		"CRS26WC144-12345",
	}
	for _, code := range codes {
		id, err := Decode(code)
		require.NoError(t, err)
		assert.Equal(t, code, id.Encode())
	}
}

func TestDecodeNamesFirstFailingField(t *testing.T) {
	tests := []struct {
		code  string
		field string
	}{
		{"CRS25WT36-0042", "length"},
		{"CRS25WT36-000420X", "length"},
		{"XYZ25WT36-00042", "company_tag"},
		{"CRSxxWT36-00042", "year"},
		{"CRS19WT36-00042", "year"},
		{"CRS99WT36-00042", "year"},
		{"CRS25XT36-00042", "frame_tag"},
		{"CRS25WX36-00042", "backsheet_tag"},
		{"CRS25WT35-00042", "panel_type"},
		{"CRS25WTAB-00042", "panel_type"},
		{"CRS25WT145-00042", "panel_type"},
		{"CRS25WT36X00042", "separator"},
		{"CRS25WT36-0004Z", "sequence"},
		{"CRS25WT36-00000", "sequence"},
	}
	for _, tt := range tests {
		_, err := Decode(tt.code)
		require.Error(t, err, "code %s", tt.code)
		var mErr *MalformedIdentifierError
		require.ErrorAs(t, err, &mErr, "code %s", tt.code)
		assert.Equal(t, tt.field, mErr.Field, "code %s", tt.code)
	}
}

func TestLineForType(t *testing.T) {
	for _, panelType := range []int{36, 40, 60, 72} {
		line, ok := LineForType(panelType)
		require.True(t, ok)
		assert.Equal(t, LineA, line, "type %d", panelType)
	}
	line, ok := LineForType(144)
	require.True(t, ok)
	assert.Equal(t, LineB, line)

	_, ok = LineForType(48)
	assert.False(t, ok)
}

func TestScenarioType36DecodesToLineA(t *testing.T) {
	id, err := Decode("CRS25WT36-00042")
	require.NoError(t, err)
	assert.Equal(t, LineA, id.Line())
}
